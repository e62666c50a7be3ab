package utils

import (
	"strconv"
	"strings"
	"time"
)

// ConnectionParams описывает подключение к PostgreSQL для pgxpool
type ConnectionParams struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	ConnectTimeout  time.Duration
	ApplicationName string
}

// Validate проверяет обязательные параметры
func (p ConnectionParams) Validate() error {
	switch {
	case p.Host == "":
		return ErrStorageEmptyHostName
	case p.Port < 0 || p.Port > 65535:
		return ErrStorageInvalidPortNumber
	case p.User == "":
		return ErrStorageEmptyUsername
	case p.Password == "":
		return ErrStorageEmptyPassword
	case p.DBName == "":
		return ErrStorageInvalidDatabaseName
	case p.SSLMode == "":
		return ErrStorageInvalidSslMode
	case p.ConnectTimeout < 0:
		return ErrStorageInvalidTimeout
	case p.MaxConns < 0:
		return ErrStorageInvalidPoolSize
	}
	return nil
}

// GenerateConnectionString собирает DSN в формате key=value.
// Нулевые MaxConns и ConnectTimeout оставляют значения pgxpool по умолчанию
func GenerateConnectionString(p ConnectionParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	pairs := []string{
		"host=" + p.Host,
		"port=" + strconv.Itoa(p.Port),
		"user=" + p.User,
		"password=" + p.Password,
		"dbname=" + p.DBName,
		"sslmode=" + p.SSLMode,
	}
	if p.ConnectTimeout > 0 {
		// connect_timeout задается в целых секундах, меньше секунды округляем вверх
		seconds := int(p.ConnectTimeout.Seconds())
		if seconds == 0 {
			seconds = 1
		}
		pairs = append(pairs, "connect_timeout="+strconv.Itoa(seconds))
	}
	if p.MaxConns > 0 {
		pairs = append(pairs, "pool_max_conns="+strconv.Itoa(p.MaxConns))
	}
	if p.ApplicationName != "" {
		pairs = append(pairs, "application_name="+p.ApplicationName)
	}

	return strings.Join(pairs, " "), nil
}
