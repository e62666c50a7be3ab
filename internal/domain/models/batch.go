package models

import (
	"math"
	"time"
)

// BatchState состояние текущего прогона батча
type BatchState struct {
	RunID          string     `json:"run_id"`
	TotalProducts  int        `json:"total_products"`
	BatchSize      int        `json:"batch_size"`
	ChunkSize      int        `json:"chunk_size"`
	StartOffset    int        `json:"start_offset"`
	CurrentOffset  int        `json:"current_offset"`
	ProcessedCount int        `json:"processed_count"`
	SkippedCount   int        `json:"skipped_count"`
	FailedCount    int        `json:"failed_count"`
	TotalToProcess int        `json:"total_to_process"`
	InProgress     bool       `json:"in_progress"`
	StartedAt      time.Time  `json:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Consumed число записей, пройденных в этом прогоне
func (s *BatchState) Consumed() int {
	return s.ProcessedCount + s.SkippedCount + s.FailedCount
}

// Remaining число записей, которые осталось пройти
func (s *BatchState) Remaining() int {
	return s.TotalToProcess - s.Consumed()
}

// ChunkResult итог одного шага батча
type ChunkResult struct {
	RunID     string     `json:"run_id"`
	Visited   int        `json:"visited"`
	Created   int        `json:"created"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"failed"`
	Offset    int        `json:"offset"`
	Completed bool       `json:"completed"`
	Outcomes  []Outcome  `json:"outcomes,omitempty"`
	State     BatchState `json:"state"`
}

// Progress прогресс прохода по каталогу
type Progress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// NewProgress считает процент с точностью до десятых, не больше 100
func NewProgress(current, total int) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		p.Percentage = math.Min(100, math.Round(float64(current)/float64(total)*1000)/10)
	}
	return p
}
