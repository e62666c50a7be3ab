package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

const (
	defaultWriteAttempts = 3
	defaultWriteBackoff  = 2 * time.Second
)

// PayloadStore файлы выгрузок в каталоге на диске
type PayloadStore struct {
	dir           string
	writeAttempts int
	writeBackoff  time.Duration
	logger        interfaces.LoggerPort
}

// NewPayloadStore создает хранилище и каталог под него
func NewPayloadStore(dir string, logger interfaces.LoggerPort) (*PayloadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}
	return &PayloadStore{
		dir:           dir,
		writeAttempts: defaultWriteAttempts,
		writeBackoff:  defaultWriteBackoff,
		logger:        logger,
	}, nil
}

func (s *PayloadStore) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save пишет файл атомарно через временный файл. Размер записанного проверяется
func (s *PayloadStore) Save(ctx context.Context, name string, data []byte) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= s.writeAttempts; attempt++ {
		written, err := s.write(name, data)
		if err == nil {
			return written, nil
		}
		lastErr = err
		s.logger.WarnWithContext(ctx, "Ошибка записи файла выгрузки",
			interfaces.LogField{Key: "file", Value: name},
			interfaces.LogField{Key: "attempt", Value: attempt},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		if attempt < s.writeAttempts {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(s.writeBackoff):
			}
		}
	}
	return 0, fmt.Errorf("%w: save %s: %v", utils.ErrPersistence, name, lastErr)
}

func (s *PayloadStore) write(name string, data []byte) (int64, error) {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(name)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if n != len(data) {
		return 0, fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.path(name))
	if err != nil {
		return 0, err
	}
	if info.Size() != int64(len(data)) {
		return 0, fmt.Errorf("size mismatch: %d of %d bytes", info.Size(), len(data))
	}
	return info.Size(), nil
}

// Load читает файл целиком
func (s *PayloadStore) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", utils.ErrNotFound, name)
	}
	return data, err
}

// Stat возвращает nil, nil если файла нет
func (s *PayloadStore) Stat(_ context.Context, name string) (*models.PayloadInfo, error) {
	info, err := os.Stat(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.PayloadInfo{Name: name, Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
}
