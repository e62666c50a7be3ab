package models

import (
	"strings"
	"time"
)

// RemoteService имя сервиса удаленной учетной системы. Регистр значим
type RemoteService string

const (
	ServiceNomenclature RemoteService = "NOMENCLATURE"
	ServicePriceList    RemoteService = "PRICELIST"
	ServiceBalance      RemoteService = "BALANCE"
	ServiceParentList   RemoteService = "PARENTLIST"
	ServiceTranslations RemoteService = "Translations"
)

// Alternate возвращает вариант имени в нижнем регистре.
// Часть инсталляций принимает только его
func (s RemoteService) Alternate() RemoteService {
	return RemoteService(strings.ToLower(string(s)))
}

// RemoteRequest описывает асинхронный запрос данных
type RemoteRequest struct {
	Service RemoteService `json:"service"`
	All     bool          `json:"all"`
	Params  string        `json:"params,omitempty"`
}

// ResponseNode узел разобранного ответа GetDataByID.
// Дочерние элементы всегда хранятся списком, даже если элемент один
type ResponseNode struct {
	Name     string
	Text     string
	Children []*ResponseNode
}

// IsLeaf true, если у узла нет дочерних элементов
func (n *ResponseNode) IsLeaf() bool {
	return n != nil && len(n.Children) == 0
}

// Child возвращает первый дочерний узел с указанным локальным именем (без учета регистра)
func (n *ResponseNode) Child(name string) *ResponseNode {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// RemoteResponse результат вызова GetDataByID: дерево тела ответа и сырой конверт
type RemoteResponse struct {
	Body *ResponseNode
	Raw  string
}

// PollProfile бюджет ожидания готовности данных
type PollProfile struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval" json:"interval"`
}
