package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	translationsStateKey = "translations"
	// translationsVersionKey меняется при каждой записи таблицы. Горячий кэш
	// привязан к версии, поэтому замена таблицы в другом процессе видна сразу
	translationsVersionKey = "translations_version"
	// DefaultTranslationLocale локаль, которую извлекаем из valueJSON
	DefaultTranslationLocale = "md"
)

// TranslationStore таблица переводов в хранилище состояния с горячим кэшем процесса
type TranslationStore struct {
	state    interfaces.StatePort
	payloads PayloadStore
	parser   *CatalogParser
	fileName string
	hot      *gocache.Cache
	logger   interfaces.LoggerPort
}

// NewTranslationStore создает хранилище переводов
func NewTranslationStore(state interfaces.StatePort, payloads PayloadStore, parser *CatalogParser, fileName string, hotTTL time.Duration, logger interfaces.LoggerPort) *TranslationStore {
	return &TranslationStore{
		state:    state,
		payloads: payloads,
		parser:   parser,
		fileName: fileName,
		hot:      gocache.New(hotTTL, 2*hotTTL),
		logger:   logger,
	}
}

// Process разбирает сохраненный файл переводов и целиком заменяет таблицу
func (s *TranslationStore) Process(ctx context.Context) (*models.TranslationTable, error) {
	raw, err := s.payloads.Load(ctx, s.fileName)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Файл переводов не найден",
			interfaces.LogField{Key: "file", Value: s.fileName},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("load translations file: %w", err)
	}

	table, err := s.parser.ParseTranslations(string(raw))
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Ошибка разбора файла переводов",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("parse translations: %w", err)
	}

	if err := s.Save(ctx, table); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Переводы обработаны",
		interfaces.LogField{Key: "nomenclature", Value: len(table.Nomenclature)},
		interfaces.LogField{Key: "properties", Value: len(table.Properties)},
	)
	return table, nil
}

// Save сохраняет таблицу
func (s *TranslationStore) Save(ctx context.Context, table *models.TranslationTable) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshal translations: %w", err)
	}
	if err := s.state.Set(ctx, translationsStateKey, data); err != nil {
		return fmt.Errorf("save translations: %w", err)
	}
	version := uuid.New().String()
	if err := s.state.Set(ctx, translationsVersionKey, []byte(version)); err != nil {
		return fmt.Errorf("save translations version: %w", err)
	}
	s.hot.SetDefault(hotTableKey(version), table)
	return nil
}

func hotTableKey(version string) string {
	return "table:" + version
}

// Table возвращает текущую таблицу. Пустая таблица, если переводы не загружались
func (s *TranslationStore) Table(ctx context.Context) (*models.TranslationTable, error) {
	version, err := s.state.Get(ctx, translationsVersionKey)
	if err != nil {
		return nil, fmt.Errorf("load translations version: %w", err)
	}
	key := hotTableKey(string(version))
	if v, ok := s.hot.Get(key); ok {
		return v.(*models.TranslationTable), nil
	}

	data, err := s.state.Get(ctx, translationsStateKey)
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}

	table := models.NewTranslationTable()
	if data != nil {
		if err := json.Unmarshal(data, table); err != nil {
			return nil, fmt.Errorf("decode translations: %w", err)
		}
	}

	s.hot.SetDefault(key, table)
	return table, nil
}

// HasTranslations true, если таблица не пуста
func (s *TranslationStore) HasTranslations(ctx context.Context) bool {
	table, err := s.Table(ctx)
	if err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось прочитать переводы",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return false
	}
	return !table.Empty()
}

// ProductTranslation перевод поля товара
func (s *TranslationStore) ProductTranslation(ctx context.Context, uuid, field string) (string, bool) {
	table, err := s.Table(ctx)
	if err != nil {
		return "", false
	}
	text, ok := table.Nomenclature[uuid][field]
	return text, ok && text != ""
}

// PropertyTranslation перевод объекта (категории, свойства)
func (s *TranslationStore) PropertyTranslation(ctx context.Context, uuid string) (string, bool) {
	table, err := s.Table(ctx)
	if err != nil {
		return "", false
	}
	p, ok := table.Properties[uuid]
	return p.Translation, ok && p.Translation != ""
}
