package models

import "time"

// CategoryNode узел дерева категорий каталога
type CategoryNode struct {
	UUID     string          `json:"uuid"`
	Name     string          `json:"name"`
	Code     string          `json:"code"`
	Children []*CategoryNode `json:"children,omitempty"`
}

// Count возвращает число узлов поддерева, включая сам узел
func (n *CategoryNode) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// ProductCategory локальная категория товаров
type ProductCategory struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	ParentID   string    `json:"parent_id,omitempty"`
	RemoteUUID string    `json:"remote_uuid,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CategoryMapping сохраненное соответствие remoteUUID -> локальный ID
type CategoryMapping map[string]string
