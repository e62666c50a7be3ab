package services

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// document корень любой выгрузки. Имя корневого элемента не проверяется,
// нужные списки выбираются по именам дочерних элементов
type document struct {
	Items      []nomenclatureXML `xml:"nomenclature"`
	Parents    []categoryXML     `xml:"parent"`
	Prices     []priceXML        `xml:"price"`
	Balances   []balanceXML      `xml:"balance"`
	Requisites []requisiteXML    `xml:"nomenclatureRequisitesValueList"`
	Properties []propertyXML     `xml:"objectPropertyValueList"`
}

type nomenclatureXML struct {
	UUID        string     `xml:"UUID"`
	Code        string     `xml:"code"`
	Name        string     `xml:"name"`
	Description string     `xml:"description"`
	Article     string     `xml:"article"`
	Barcode     string     `xml:"barcode"`
	Active      string     `xml:"active"`
	Parent      string     `xml:"parent"`
	MainImage   string     `xml:"mainImage"`
	Images      []imageXML `xml:"imageList>image"`
}

type imageXML struct {
	UUID       string `xml:"UUID"`
	Name       string `xml:"name"`
	PathGlobal string `xml:"pathGlobal"`
}

type categoryXML struct {
	UUID     string        `xml:"UUID"`
	Name     string        `xml:"name"`
	Code     string        `xml:"code"`
	Children []categoryXML `xml:"parent"`
}

type priceXML struct {
	Price string `xml:"Price"`
}

type balanceXML struct {
	Quantity string `xml:"quantity"`
}

type requisiteXML struct {
	Nomenclature string `xml:"nomenclature"`
	Requisite    string `xml:"requisite"`
	Ref          string `xml:"ref"`
	ValueJSON    string `xml:"valueJSON"`
}

type propertyXML struct {
	Object     string `xml:"object"`
	ObjectType string `xml:"objectType"`
	ValueJSON  string `xml:"valueJSON"`
}

// CatalogParser разбирает XML-выгрузки учетной системы
type CatalogParser struct {
	skuPrefix string
	locale    string
	logger    interfaces.LoggerPort
}

// NewCatalogParser создает парсер
func NewCatalogParser(skuPrefix, locale string, logger interfaces.LoggerPort) *CatalogParser {
	if skuPrefix == "" {
		skuPrefix = DefaultSKUPrefix
	}
	if locale == "" {
		locale = DefaultTranslationLocale
	}
	return &CatalogParser{skuPrefix: skuPrefix, locale: locale, logger: logger}
}

// DecodePayload снимает BOM и HTML-экранирование. Выгрузка, которая уже
// начинается с разметки, не раскодируется: экранированный текст внутри нее
// остается частью XML
func DecodePayload(raw string) string {
	text := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if text != "" && !strings.HasPrefix(text, "<") {
		text = strings.TrimSpace(html.UnescapeString(text))
	}
	return text
}

// charsetReader поддерживает windows-1251. Если байты уже валидный UTF-8
// (выгрузка была перекодирована транспортом), они возвращаются как есть
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "windows-1251", "cp1251", "cp-1251":
		data, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		if utf8.Valid(data) {
			return bytes.NewReader(data), nil
		}
		return transform.NewReader(bytes.NewReader(data), charmap.Windows1251.NewDecoder()), nil
	case "utf-8", "utf8", "us-ascii":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

func unmarshalXML(text string, strict bool, v interface{}) error {
	d := xml.NewDecoder(strings.NewReader(text))
	d.CharsetReader = charsetReader
	if !strict {
		d.Strict = false
		d.AutoClose = xml.HTMLAutoClose
		d.Entity = xml.HTMLEntity
	}
	return d.Decode(v)
}

// decode разбирает документ строго, а при ошибке повторяет в мягком режиме
func (p *CatalogParser) decode(raw string) (*document, error) {
	text := DecodePayload(raw)
	if text == "" {
		return nil, utils.ErrEmptyPayload
	}

	var doc document
	err := unmarshalXML(text, true, &doc)
	if err == nil {
		return &doc, nil
	}

	p.logger.Warn("Ошибка XML, пробуем мягкий разбор",
		interfaces.LogField{Key: "error", Value: err.Error()},
		interfaces.LogField{Key: "length", Value: len(text)},
	)

	doc = document{}
	if lenientErr := unmarshalXML(text, false, &doc); lenientErr != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrParse, lenientErr)
	}
	return &doc, nil
}

// ParseCatalog возвращает товары в порядке документа
func (p *CatalogParser) ParseCatalog(raw string) ([]models.ProductRecord, error) {
	doc, err := p.decode(raw)
	if err != nil {
		return nil, err
	}

	records := make([]models.ProductRecord, 0, len(doc.Items))
	for _, item := range doc.Items {
		rec := models.ProductRecord{
			UUID:          strings.TrimSpace(item.UUID),
			Code:          strings.TrimSpace(item.Code),
			Name:          strings.TrimSpace(item.Name),
			Description:   strings.TrimSpace(item.Description),
			Article:       strings.TrimSpace(item.Article),
			Barcode:       strings.TrimSpace(item.Barcode),
			Active:        strings.EqualFold(strings.TrimSpace(item.Active), "true"),
			CategoryUUID:  strings.TrimSpace(item.Parent),
			MainImageUUID: strings.TrimSpace(item.MainImage),
		}
		rec.SKU = FormatSKUWithPrefix(p.skuPrefix, rec.Code)

		for _, img := range item.Images {
			url := strings.TrimSpace(img.PathGlobal)
			if url == "" {
				continue
			}
			imgUUID := strings.TrimSpace(img.UUID)
			rec.Images = append(rec.Images, models.ImageRef{
				UUID:   imgUUID,
				URL:    url,
				Name:   strings.TrimSpace(img.Name),
				IsMain: imgUUID != "" && imgUUID == rec.MainImageUUID,
			})
		}

		records = append(records, rec)
	}

	return records, nil
}

// ParseCategories возвращает лес категорий
func (p *CatalogParser) ParseCategories(raw string) ([]*models.CategoryNode, error) {
	doc, err := p.decode(raw)
	if err != nil {
		return nil, err
	}
	return convertCategories(doc.Parents), nil
}

func convertCategories(items []categoryXML) []*models.CategoryNode {
	nodes := make([]*models.CategoryNode, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, &models.CategoryNode{
			UUID:     strings.TrimSpace(item.UUID),
			Name:     strings.TrimSpace(item.Name),
			Code:     strings.TrimSpace(item.Code),
			Children: convertCategories(item.Children),
		})
	}
	return nodes
}

// ParsePriceList берет первую цену. nil, если цены в ответе нет
func (p *CatalogParser) ParsePriceList(raw string) (*float64, error) {
	doc, err := p.decode(raw)
	if err != nil {
		return nil, err
	}
	if len(doc.Prices) == 0 {
		return nil, nil
	}
	value, err := parseNumber(doc.Prices[0].Price)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q", utils.ErrParse, doc.Prices[0].Price)
	}
	return &value, nil
}

// ParseBalance берет первый остаток. 0, если остатка в ответе нет
func (p *CatalogParser) ParseBalance(raw string) (int, error) {
	doc, err := p.decode(raw)
	if err != nil {
		return 0, err
	}
	if len(doc.Balances) == 0 {
		return 0, nil
	}
	value, err := parseNumber(doc.Balances[0].Quantity)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q", utils.ErrParse, doc.Balances[0].Quantity)
	}
	return int(value), nil
}

// ParseTranslations собирает таблицу переводов для локали парсера
func (p *CatalogParser) ParseTranslations(raw string) (*models.TranslationTable, error) {
	doc, err := p.decode(raw)
	if err != nil {
		return nil, err
	}

	table := models.NewTranslationTable()

	for _, item := range doc.Requisites {
		text, ok := localeValue(item.ValueJSON, p.locale)
		if !ok {
			continue
		}
		id := strings.TrimSpace(item.Nomenclature)
		fields, exists := table.Nomenclature[id]
		if !exists {
			fields = make(map[string]string)
			table.Nomenclature[id] = fields
		}
		fields[strings.TrimSpace(item.Requisite)] = text
	}

	for _, item := range doc.Properties {
		text, ok := localeValue(item.ValueJSON, p.locale)
		if !ok {
			continue
		}
		table.Properties[strings.TrimSpace(item.Object)] = models.PropertyTranslation{
			ObjectType:  strings.TrimSpace(item.ObjectType),
			Translation: text,
		}
	}

	return table, nil
}

// localeValue достает значение локали из JSON вида {"md": "...", "ru": "..."}
func localeValue(valueJSON, locale string) (string, bool) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(valueJSON)), &values); err != nil {
		return "", false
	}
	rawValue, ok := values[locale]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(rawValue, &text); err == nil {
		return text, true
	}
	return string(rawValue), true
}

// parseNumber принимает десятичную запятую и пробелы-разделители разрядов
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
