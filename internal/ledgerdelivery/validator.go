package ledgerdelivery

import (
	"github.com/go-playground/validator/v10"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// ValidDescription validates that the description is a non-blank text of at most ten characters.
var ValidDescription validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return domain.ValidDescription(s)
	}

	return false
}
