package models

// ProductFilter фильтр списка локальных товаров
type ProductFilter struct {
	SearchQuery string `json:"search_query,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	Status      string `json:"status,omitempty"`
	InStock     *bool  `json:"in_stock,omitempty"`
}

// ToMap преобразует ProductFilter в map для логирования и построения запросов
func (f *ProductFilter) ToMap() map[string]interface{} {
	result := make(map[string]interface{})

	if f.SearchQuery != "" {
		result["search_query"] = f.SearchQuery
	}

	if f.CategoryID != "" {
		result["category_id"] = f.CategoryID
	}

	if f.Status != "" {
		result["status"] = f.Status
	}

	if f.InStock != nil {
		result["in_stock"] = *f.InStock
	}

	return result
}
