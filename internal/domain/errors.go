package domain

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrScopeNotFound = errors.New("tenant scope not found")
	ErrUnknownTenant = errors.New("tenant cannot be determined")
	ErrSourceClosed  = errors.New("change source closed")
	ErrHubStopped    = errors.New("hub stopped")
)
