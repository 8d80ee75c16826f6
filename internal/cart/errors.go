package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation базовая ошибка некорректных аргументов
	ErrValidation        = errors.New("validation failed")
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	ErrInvalidProductRef = fmt.Errorf("%w: product reference is required", ErrValidation)

	ErrProductNotFound    = errors.New("product not found")
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	errMalformedState = errors.New("malformed cart state")
)
