package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidTemplate   = errors.New("invalid template")
	ErrDuplicateTemplate = errors.New("template already exists")
	ErrDuplicateSource   = errors.New("data source endpoint already registered")
	ErrSchemaSync        = errors.New("schema synchronization failed")
	ErrSourceFetch       = errors.New("source fetch failed")
	ErrStorage           = errors.New("storage error")
	ErrAlreadyRunning    = errors.New("auto-run already active")
	ErrNotRunning        = errors.New("auto-run not active")
)
