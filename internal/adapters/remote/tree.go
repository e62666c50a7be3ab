package remote

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"golang.org/x/text/encoding/ianaindex"
)

// ParseTree строит дерево элементов документа. Пространства имен отбрасываются
func ParseTree(data []byte) (*models.ResponseNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("unsupported charset %q", label)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	root := &models.ResponseNode{}
	stack := []*models.ResponseNode{root}
	texts := []*strings.Builder{{}}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &models.ResponseNode{Name: t.Name.Local}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
			stack = append(stack, n)
			texts = append(texts, &strings.Builder{})
		case xml.CharData:
			texts[len(texts)-1].Write(t)
		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = texts[len(texts)-1].String()
			if len(n.Children) > 0 {
				n.Text = strings.TrimSpace(n.Text)
			}
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}

	if len(root.Children) == 0 {
		return nil, fmt.Errorf("parse xml: empty document")
	}
	return root.Children[0], nil
}
