package models

// PropertyTranslation перевод произвольного объекта с тегом его типа
type PropertyTranslation struct {
	ObjectType  string `json:"type"`
	Translation string `json:"translation"`
}

// TranslationTable таблица переводов. Пересобирается целиком при каждой загрузке
type TranslationTable struct {
	// Nomenclature uuid товара -> поле -> перевод
	Nomenclature map[string]map[string]string `json:"nomenclature"`
	// Properties uuid объекта -> перевод
	Properties map[string]PropertyTranslation `json:"properties"`
}

// NewTranslationTable создает пустую таблицу
func NewTranslationTable() *TranslationTable {
	return &TranslationTable{
		Nomenclature: make(map[string]map[string]string),
		Properties:   make(map[string]PropertyTranslation),
	}
}

// Empty true, если таблица не содержит переводов
func (t *TranslationTable) Empty() bool {
	return t == nil || (len(t.Nomenclature) == 0 && len(t.Properties) == 0)
}
