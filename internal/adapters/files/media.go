package files

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// MaxImageSize предел размера одного изображения
const MaxImageSize = 32 << 20

// MediaDownloader скачивает изображения в локальный каталог медиа
type MediaDownloader struct {
	dir     string
	client  *http.Client
	limiter *rate.Limiter
	logger  interfaces.LoggerPort
}

// NewMediaDownloader создает загрузчик. ratePerMinute 0 отключает ограничение
func NewMediaDownloader(dir string, timeout time.Duration, ratePerMinute int, logger interfaces.LoggerPort) (*MediaDownloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	d := &MediaDownloader{
		dir:    dir,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	if ratePerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return d, nil
}

// Download скачивает файл по ссылке и сохраняет под уникальным именем
func (d *MediaDownloader) Download(ctx context.Context, ref models.ImageRef) (*models.MediaFile, error) {
	if ref.URL == "" {
		return nil, fmt.Errorf("image %s has no url", ref.UUID)
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %d", ref.URL, resp.StatusCode)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("download %s: not an image (%s)", ref.URL, mimeType)
	}

	localPath := filepath.Join(d.dir, uuid.New().String()+extension(ref, mimeType))
	f, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("create image file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, MaxImageSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxImageSize {
		err = fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty image")
	}
	if err != nil {
		os.Remove(localPath)
		return nil, fmt.Errorf("download %s: %w", ref.URL, err)
	}

	return &models.MediaFile{
		SourceUUID: ref.UUID,
		SourceURL:  ref.URL,
		LocalPath:  localPath,
		MimeType:   mimeType,
		Size:       n,
	}, nil
}

func extension(ref models.ImageRef, mimeType string) string {
	if ext := path.Ext(ref.Name); ext != "" {
		return strings.ToLower(ext)
	}
	if i := strings.IndexAny(ref.URL, "?#"); i >= 0 {
		if ext := path.Ext(ref.URL[:i]); ext != "" {
			return strings.ToLower(ext)
		}
	} else if ext := path.Ext(ref.URL); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
