package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

// LineSink принимает строки журнала синхронизации
type LineSink interface {
	Append(ctx context.Context, line string) error
}

// SyncLogTee пишет записи в основной логгер и дублирует Info/Warn/Error
// в журнал синхронизации, который опрашивает панель управления
type SyncLogTee struct {
	inner   interfaces.LoggerPort
	sink    LineSink
	fields  []interfaces.LogField
	timeout time.Duration
}

// NewSyncLogTee создает логгер-тройник
func NewSyncLogTee(inner interfaces.LoggerPort, sink LineSink) *SyncLogTee {
	return &SyncLogTee{inner: inner, sink: sink, timeout: 5 * time.Second}
}

// FormatLine собирает строку вида "msg key=value key=value"
func FormatLine(msg string, fields []interfaces.LogField, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(msg)

	write := func(key string, value interface{}) {
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		fmt.Fprint(&b, value)
	}

	for _, f := range fields {
		write(f.Key, f.Value)
	}

	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case interfaces.LogField:
			write(a.Key, a.Value)
		case string:
			if i+1 < len(args) {
				write(a, args[i+1])
				i++
				continue
			}
			b.WriteByte(' ')
			b.WriteString(a)
		default:
			b.WriteByte(' ')
			fmt.Fprint(&b, a)
		}
	}

	return b.String()
}

func (t *SyncLogTee) mirror(ctx context.Context, prefix, msg string, args []interface{}) {
	if t.sink == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// журнал не должен зависеть от отмены запроса, который его пишет
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	if err := t.sink.Append(ctx, prefix+FormatLine(msg, t.fields, args...)); err != nil {
		t.inner.Debug("Не удалось записать строку в журнал синхронизации",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// Debug пишется только в основной логгер
func (t *SyncLogTee) Debug(msg string, args ...interface{}) {
	t.inner.Debug(msg, args...)
}

func (t *SyncLogTee) Info(msg string, args ...interface{}) {
	t.inner.Info(msg, args...)
	t.mirror(nil, "", msg, args)
}

func (t *SyncLogTee) Warn(msg string, args ...interface{}) {
	t.inner.Warn(msg, args...)
	t.mirror(nil, "ПРЕДУПРЕЖДЕНИЕ: ", msg, args)
}

func (t *SyncLogTee) Error(msg string, args ...interface{}) {
	t.inner.Error(msg, args...)
	t.mirror(nil, "ОШИБКА: ", msg, args)
}

func (t *SyncLogTee) Fatal(msg string, args ...interface{}) {
	t.mirror(nil, "ОШИБКА: ", msg, args)
	t.inner.Fatal(msg, args...)
}

func (t *SyncLogTee) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {
	t.inner.DebugWithContext(ctx, msg, args...)
}

func (t *SyncLogTee) InfoWithContext(ctx context.Context, msg string, args ...interface{}) {
	t.inner.InfoWithContext(ctx, msg, args...)
	t.mirror(ctx, "", msg, args)
}

func (t *SyncLogTee) WarnWithContext(ctx context.Context, msg string, args ...interface{}) {
	t.inner.WarnWithContext(ctx, msg, args...)
	t.mirror(ctx, "ПРЕДУПРЕЖДЕНИЕ: ", msg, args)
}

func (t *SyncLogTee) ErrorWithContext(ctx context.Context, msg string, args ...interface{}) {
	t.inner.ErrorWithContext(ctx, msg, args...)
	t.mirror(ctx, "ОШИБКА: ", msg, args)
}

func (t *SyncLogTee) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort {
	merged := make([]interfaces.LogField, 0, len(t.fields)+len(fields))
	merged = append(merged, t.fields...)
	merged = append(merged, fields...)
	return &SyncLogTee{inner: t.inner.WithFields(fields...), sink: t.sink, fields: merged, timeout: t.timeout}
}

func (t *SyncLogTee) WithField(key string, value interface{}) interfaces.LoggerPort {
	return t.WithFields(interfaces.LogField{Key: key, Value: value})
}

func (t *SyncLogTee) WithRunID(runID string) interfaces.LoggerPort {
	return t.WithField(string(interfaces.RunIDKey), runID)
}

func (t *SyncLogTee) SetLevel(level interfaces.LogLevel) {
	t.inner.SetLevel(level)
}

func (t *SyncLogTee) GetLevel() interfaces.LogLevel {
	return t.inner.GetLevel()
}

func (t *SyncLogTee) Sync() error {
	return t.inner.Sync()
}
