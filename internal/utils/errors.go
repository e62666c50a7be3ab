package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is empty")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")

	ErrNotFound    = errors.New("record not found")
	ErrPersistence = errors.New("local store write failed")
)

// ----------------- remote ------------------
var (
	ErrRemoteTransport = errors.New("remote transport failure")
	ErrNoRequestID     = errors.New("remote returned no request id")
	ErrRemoteTimeout   = errors.New("remote data not ready in time")
	ErrPayloadNotFound = errors.New("payload not found in remote response")
)

// ----------------- parse ------------------
var (
	ErrParse        = errors.New("malformed payload")
	ErrEmptyPayload = errors.New("payload is empty")
)

// ----------------- batch ------------------
var (
	ErrBatchInProgress = errors.New("batch is already in progress")
	ErrBatchBusy       = errors.New("chunk is being processed by another caller")
	ErrConcurrentRun   = errors.New("batch state was changed concurrently")
	ErrEmptyCatalog    = errors.New("catalog is empty")
	ErrInvalidCursor   = errors.New("cursor must be non-negative")
	ErrInvalidBatch    = errors.New("batch size must be positive")
)

// ----------------- jobs ------------------
var (
	ErrUnknownJobKind = errors.New("unknown download job kind")
	ErrJobBusy        = errors.New("download job of this kind is already running")
)

// ----------------- cache ------------------
var (
	ErrCacheMiss = errors.New("cache miss")
)

// ----------------- auth ------------------
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
