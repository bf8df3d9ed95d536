package domain

import "errors"

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrOptionNotFound      = errors.New("option not found")
	ErrQuoteNotFound       = errors.New("quote not found")
	// ErrPersistence marks failures of the storage collaborator. Repositories
	// wrap the driver error alongside it so both stay matchable.
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidMarkup      = errors.New("invalid markup policy")
	ErrMalformedComponent = errors.New("malformed cost component")
	ErrValidation         = errors.New("validation failed")
)
