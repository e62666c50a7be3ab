package models

import "time"

// JobKind вид отложенной загрузки
type JobKind string

const (
	JobNomenclature JobKind = "nomenclature"
	JobTranslations JobKind = "translations"
	JobCategories   JobKind = "categories"
)

// Valid проверяет, что вид задачи известен
func (k JobKind) Valid() bool {
	switch k {
	case JobNomenclature, JobTranslations, JobCategories:
		return true
	}
	return false
}

// DownloadJob сообщение очереди отложенных загрузок
type DownloadJob struct {
	ID          string    `json:"id"`           // Уникальный ID задачи
	Kind        JobKind   `json:"kind"`         // Что загружать
	RequestedBy string    `json:"requested_by"` // Кто поставил задачу (опционально)
	RequestedAt time.Time `json:"requested_at"` // Время постановки
}

// JobResult итог выполнения задачи загрузки
type JobResult struct {
	JobID       string        `json:"job_id"`
	Kind        JobKind       `json:"kind"`
	Bytes       int64         `json:"bytes,omitempty"`      // Размер сохраненного файла
	Processed   int           `json:"processed,omitempty"`  // Число обработанных категорий или переводов
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
