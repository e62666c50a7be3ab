package services

import (
	"context"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// DownloadedImage изображение, уже лежащее в медиахранилище
type DownloadedImage struct {
	Ref  models.ImageRef
	File *models.MediaFile
}

// ImagePipeline скачивает изображения товара и привязывает их к карточке
type ImagePipeline struct {
	downloader MediaDownloader
	store      CatalogStore
	logger     interfaces.LoggerPort
}

// NewImagePipeline создает конвейер изображений
func NewImagePipeline(downloader MediaDownloader, store CatalogStore, logger interfaces.LoggerPort) *ImagePipeline {
	return &ImagePipeline{downloader: downloader, store: store, logger: logger}
}

// Download скачивает изображения по порядку. Ошибки отдельных файлов пропускаются
func (p *ImagePipeline) Download(ctx context.Context, rec models.ProductRecord) []DownloadedImage {
	downloaded := make([]DownloadedImage, 0, len(rec.Images))
	for _, ref := range rec.Images {
		if ctx.Err() != nil {
			break
		}
		p.logger.DebugWithContext(ctx, "Скачиваем изображение",
			interfaces.LogField{Key: "name", Value: ref.Name},
			interfaces.LogField{Key: "url", Value: ref.URL},
		)
		file, err := p.downloader.Download(ctx, ref)
		if err != nil {
			metrics.ImageDownloads.WithLabelValues("error").Inc()
			p.logger.WarnWithContext(ctx, "Не удалось скачать изображение",
				interfaces.LogField{Key: "sku", Value: rec.SKU},
				interfaces.LogField{Key: "url", Value: ref.URL},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			continue
		}
		metrics.ImageDownloads.WithLabelValues("ok").Inc()
		downloaded = append(downloaded, DownloadedImage{Ref: ref, File: file})
	}
	return downloaded
}

// Attach сохраняет медиа и выбирает главное изображение и галерею.
// Главное: совпавшее с mainImage, иначе первое скачанное.
// Галерея: остальные скачанные, только если у товара два изображения или больше
func (p *ImagePipeline) Attach(ctx context.Context, productID string, rec models.ProductRecord, images []DownloadedImage) (featuredID string, gallery string, err error) {
	if len(images) == 0 {
		return "", "", nil
	}

	ids := make([]string, 0, len(images))
	for i, img := range images {
		media := &models.ProductMedia{
			ProductID:  productID,
			SourceUUID: img.Ref.UUID,
			SourceURL:  img.Ref.URL,
			LocalPath:  img.File.LocalPath,
			MimeType:   img.File.MimeType,
			Size:       img.File.Size,
			Position:   i,
		}
		if err := p.store.AttachMedia(ctx, media); err != nil {
			return "", "", err
		}
		ids = append(ids, media.ID)
		if featuredID == "" && rec.MainImageUUID != "" && img.Ref.UUID == rec.MainImageUUID {
			featuredID = media.ID
		}
	}

	if featuredID == "" {
		featuredID = ids[0]
	}

	if len(rec.Images) >= 2 {
		rest := make([]string, 0, len(ids)-1)
		for _, id := range ids {
			if id != featuredID {
				rest = append(rest, id)
			}
		}
		gallery = strings.Join(rest, ",")
	}

	if err := p.store.SetProductMedia(ctx, productID, featuredID, gallery); err != nil {
		return "", "", err
	}

	p.logger.DebugWithContext(ctx, "Изображения привязаны",
		interfaces.LogField{Key: "product_id", Value: productID},
		interfaces.LogField{Key: "count", Value: len(ids)},
	)
	return featuredID, gallery, nil
}

// Process скачивает и привязывает изображения одной операцией
func (p *ImagePipeline) Process(ctx context.Context, productID string, rec models.ProductRecord) error {
	_, _, err := p.Attach(ctx, productID, rec, p.Download(ctx, rec))
	return err
}
