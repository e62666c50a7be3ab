package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const categoryMappingKey = "category_mapping"

// RemoteFetcher запрос, ожидание и получение выгрузки одной операцией
type RemoteFetcher interface {
	Fetch(ctx context.Context, req models.RemoteRequest, profile models.PollProfile) (string, error)
}

// CategoryMapper сопоставляет категории учетной системы локальным категориям
type CategoryMapper struct {
	remote  RemoteFetcher
	parser  *CatalogParser
	store   CatalogStore
	state   interfaces.StatePort
	profile models.PollProfile
	logger  interfaces.LoggerPort

	// mu сериализует чтение-изменение-запись маппинга внутри процесса
	mu sync.Mutex
}

// NewCategoryMapper создает маппер
func NewCategoryMapper(remote RemoteFetcher, parser *CatalogParser, store CatalogStore, state interfaces.StatePort, profile models.PollProfile, logger interfaces.LoggerPort) *CategoryMapper {
	return &CategoryMapper{
		remote:  remote,
		parser:  parser,
		store:   store,
		state:   state,
		profile: profile,
		logger:  logger,
	}
}

// CleanCategoryName убирает ведущие точки и подчеркивания
func CleanCategoryName(name string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(name), "._"))
}

// Slugify строит идентификатор категории: без диакритики, в нижнем регистре, через дефис
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Mapping возвращает сохраненный маппинг
func (m *CategoryMapper) Mapping(ctx context.Context) (models.CategoryMapping, error) {
	data, err := m.state.Get(ctx, categoryMappingKey)
	if err != nil {
		return nil, fmt.Errorf("load category mapping: %w", err)
	}
	mapping := models.CategoryMapping{}
	if data == nil {
		return mapping, nil
	}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("decode category mapping: %w", err)
	}
	return mapping, nil
}

func (m *CategoryMapper) saveMapping(ctx context.Context, mapping models.CategoryMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal category mapping: %w", err)
	}
	if err := m.state.Set(ctx, categoryMappingKey, data); err != nil {
		return fmt.Errorf("save category mapping: %w", err)
	}
	return nil
}

// SyncCategories загружает дерево категорий и обходит его в прямом порядке
func (m *CategoryMapper) SyncCategories(ctx context.Context) (int, error) {
	m.logger.InfoWithContext(ctx, "Начинаем синхронизацию категорий")

	raw, err := m.remote.Fetch(ctx, models.RemoteRequest{
		Service: models.ServiceParentList,
		All:     true,
		Params:  string(models.ServiceNomenclature),
	}, m.profile)
	if err != nil {
		return 0, fmt.Errorf("fetch categories: %w", err)
	}

	roots, err := m.parser.ParseCategories(raw)
	if err != nil {
		m.logger.ErrorWithContext(ctx, "Ошибка разбора категорий",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return 0, fmt.Errorf("parse categories: %w", err)
	}

	processed, err := m.SyncTree(ctx, roots)
	if err != nil {
		return processed, err
	}

	m.logger.InfoWithContext(ctx, "Синхронизация категорий завершена",
		interfaces.LogField{Key: "processed", Value: processed},
	)
	return processed, nil
}

// SyncTree сопоставляет уже разобранный лес категорий
func (m *CategoryMapper) SyncTree(ctx context.Context, roots []*models.CategoryNode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, err := m.Mapping(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		processed += m.walk(ctx, root, "", mapping)
	}
	return processed, nil
}

// walk родитель раньше детей. При ошибке узла его поддерево пропускается
func (m *CategoryMapper) walk(ctx context.Context, node *models.CategoryNode, parentID string, mapping models.CategoryMapping) int {
	m.logger.DebugWithContext(ctx, "Обрабатываем категорию",
		interfaces.LogField{Key: "name", Value: node.Name},
		interfaces.LogField{Key: "uuid", Value: node.UUID},
	)

	id, err := m.findOrCreate(ctx, node.UUID, node.Name, node.Code, parentID, mapping)
	if err != nil {
		m.logger.ErrorWithContext(ctx, "Не удалось создать категорию, поддерево пропущено",
			interfaces.LogField{Key: "name", Value: node.Name},
			interfaces.LogField{Key: "uuid", Value: node.UUID},
			interfaces.LogField{Key: "children", Value: node.Count() - 1},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return 0
	}

	processed := 1
	for _, child := range node.Children {
		if ctx.Err() != nil {
			break
		}
		processed += m.walk(ctx, child, id, mapping)
	}
	return processed
}

// FindOrCreateCategory возвращает локальный ID категории, создавая ее при необходимости
func (m *CategoryMapper) FindOrCreateCategory(ctx context.Context, uuid, name, code, parentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, err := m.Mapping(ctx)
	if err != nil {
		return "", err
	}
	return m.findOrCreate(ctx, uuid, name, code, parentID, mapping)
}

func (m *CategoryMapper) findOrCreate(ctx context.Context, uuid, name, code, parentID string, mapping models.CategoryMapping) (string, error) {
	if uuid == "" {
		return "", fmt.Errorf("category %q has no uuid", name)
	}

	cleanName := CleanCategoryName(name)
	if cleanName == "" {
		cleanName = code
	}

	existing, err := m.lookup(ctx, uuid, mapping)
	if err != nil {
		return "", err
	}

	if existing != nil {
		existing.Name = cleanName
		existing.ParentID = parentID
		if err := m.store.UpdateCategory(ctx, existing); err != nil {
			return "", err
		}
		if mapping[uuid] != existing.ID {
			mapping[uuid] = existing.ID
			if err := m.saveMapping(ctx, mapping); err != nil {
				return "", err
			}
		}
		return existing.ID, nil
	}

	slug := Slugify(code)
	if slug == "" {
		slug = Slugify(cleanName)
	}
	if slug == "" {
		slug = uuid
	}

	category := &models.ProductCategory{
		Name:       cleanName,
		Slug:       slug,
		ParentID:   parentID,
		RemoteUUID: uuid,
	}
	if err := m.store.CreateCategory(ctx, category); err != nil {
		return "", err
	}

	mapping[uuid] = category.ID
	if err := m.saveMapping(ctx, mapping); err != nil {
		return "", err
	}

	m.logger.InfoWithContext(ctx, "Категория создана",
		interfaces.LogField{Key: "name", Value: cleanName},
		interfaces.LogField{Key: "id", Value: category.ID},
	)
	return category.ID, nil
}

// lookup ищет по маппингу, затем по сохраненному remote UUID
func (m *CategoryMapper) lookup(ctx context.Context, uuid string, mapping models.CategoryMapping) (*models.ProductCategory, error) {
	if id, ok := mapping[uuid]; ok {
		category, err := m.store.FindCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		if category != nil {
			return category, nil
		}
		// локальная категория удалена, связь больше не действительна
		delete(mapping, uuid)
	}
	return m.store.FindCategoryByRemoteUUID(ctx, uuid)
}

// ResolveLocalID находит локальную категорию товара без создания новой
func (m *CategoryMapper) ResolveLocalID(ctx context.Context, uuid string) (string, bool, error) {
	if uuid == "" {
		return "", false, nil
	}

	mapping, err := m.Mapping(ctx)
	if err != nil {
		return "", false, err
	}
	if id, ok := mapping[uuid]; ok {
		return id, true, nil
	}

	category, err := m.store.FindCategoryByRemoteUUID(ctx, uuid)
	if err != nil || category == nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, err = m.Mapping(ctx)
	if err == nil {
		mapping[uuid] = category.ID
		err = m.saveMapping(ctx, mapping)
	}
	if err != nil {
		m.logger.WarnWithContext(ctx, "Не удалось дополнить маппинг категорий",
			interfaces.LogField{Key: "uuid", Value: uuid},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
	return category.ID, true, nil
}
