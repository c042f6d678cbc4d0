package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

// Validator checks reference data before any work is scheduled for it.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the pipeline's custom tags registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return entity.Platform(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

// Location returns a validation error naming every failed field.
func (v *Validator) Location(loc *entity.Location) error {
	if loc == nil {
		return apperr.Validation("validate.location", errors.New("location is nil"))
	}
	return v.check("validate.location", loc)
}

// Datapoint returns a validation error naming every failed field.
func (v *Validator) Datapoint(dp *entity.Datapoint) error {
	if dp == nil {
		return apperr.Validation("validate.datapoint", errors.New("datapoint is nil"))
	}
	if err := v.check("validate.datapoint", dp); err != nil {
		return err
	}
	if sanitizeTerm(dp.Name) == "" {
		return apperr.Validation("validate.datapoint", fmt.Errorf("datapoint %s: name has no searchable words", dp.ID))
	}
	return nil
}

func (v *Validator) check(op string, s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(op, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validation(op, fmt.Errorf("invalid fields: %s", strings.Join(fields, ", ")))
}
