// Package validator wraps go-playground struct validation behind a small
// injectable type.
package validator

import "github.com/go-playground/validator/v10"

// Validator validates transport structs against their validate tags.
type Validator struct {
	v *validator.Validate
}

// New creates an empty Validator. Modules register their own rules at
// construction time.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates a struct based on its validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// RegisterStringRule binds a tag to a plain string predicate, so domain
// packages can contribute rules without importing the validation library.
// Pointer fields are dereferenced before fn runs; pair the tag with
// omitempty to let nil through.
func (val *Validator) RegisterStringRule(tag string, fn func(string) bool) error {
	return val.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	})
}
