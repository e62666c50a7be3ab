package services

import (
	"html"
	"regexp"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
)

const (
	// MinPlausiblePayload строки короче считаются заглушками
	MinPlausiblePayload = 100
	// minEnvelopeLength конверт короче не может содержать выгрузку
	minEnvelopeLength = 500
)

var envelopeReturnRe = regexp.MustCompile(`(?s)<(?:[\w-]+:)?return\b[^>]*>(.*)</(?:[\w-]+:)?return>`)

// ExtractStrategy один из способов найти выгрузку в ответе GetDataByID
type ExtractStrategy struct {
	Name    string
	Extract func(resp *models.RemoteResponse) (string, bool)
}

// extractionStrategies порядок важен: от самого частого вида ответа к самому редкому
var extractionStrategies = []ExtractStrategy{
	{Name: "direct", Extract: extractDirect},
	{Name: "return_data", Extract: extractReturnData},
	{Name: "return_sibling", Extract: extractReturnSibling},
	{Name: "top_level", Extract: extractTopLevel},
	{Name: "envelope", Extract: extractEnvelope},
}

// ExtractPayload пробует стратегии по порядку и возвращает первую правдоподобную выгрузку
func ExtractPayload(resp *models.RemoteResponse) (payload string, strategy string, ok bool) {
	if resp == nil {
		return "", "", false
	}
	for _, s := range extractionStrategies {
		if payload, ok = s.Extract(resp); ok {
			return payload, s.Name, true
		}
	}
	return "", "", false
}

func plausible(n *models.ResponseNode) (string, bool) {
	if !n.IsLeaf() {
		return "", false
	}
	text := strings.TrimSpace(n.Text)
	if len(text) < MinPlausiblePayload {
		return "", false
	}
	return text, true
}

func dataOf(n *models.ResponseNode) (string, bool) {
	d := n.Child("data")
	if d == nil || !d.IsLeaf() {
		return "", false
	}
	text := strings.TrimSpace(d.Text)
	return text, text != ""
}

func extractDirect(resp *models.RemoteResponse) (string, bool) {
	if resp.Body == nil {
		return "", false
	}
	if text, ok := plausible(resp.Body); ok {
		return text, true
	}
	return plausible(resp.Body.Child("return"))
}

func extractReturnData(resp *models.RemoteResponse) (string, bool) {
	ret := resp.Body.Child("return")
	if ret == nil {
		return "", false
	}
	return dataOf(ret)
}

// scanFields ищет среди полей узла длинную строку или вложенный data
func scanFields(parent *models.ResponseNode, skip string) (string, bool) {
	if parent == nil {
		return "", false
	}
	for _, c := range parent.Children {
		if strings.EqualFold(c.Name, skip) {
			continue
		}
		if text, ok := plausible(c); ok {
			return text, true
		}
		if text, ok := dataOf(c); ok {
			return text, true
		}
	}
	return "", false
}

func extractReturnSibling(resp *models.RemoteResponse) (string, bool) {
	return scanFields(resp.Body.Child("return"), "data")
}

func extractTopLevel(resp *models.RemoteResponse) (string, bool) {
	return scanFields(resp.Body, "return")
}

func extractEnvelope(resp *models.RemoteResponse) (string, bool) {
	if len(resp.Raw) <= minEnvelopeLength {
		return "", false
	}
	m := envelopeReturnRe.FindStringSubmatch(resp.Raw)
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(html.UnescapeString(m[1]))
	return text, text != ""
}
