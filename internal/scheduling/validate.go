package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// AppointmentInput is the strictly typed admission request. Boundary code
// (HTTP handlers, form parsing) is responsible for producing one of these;
// the policy only ever sees well-typed input.
type AppointmentInput struct {
	OwnerID         uuid.UUID `validate:"required"`
	ClientID        uuid.UUID `validate:"required"`
	StartTime       time.Time `validate:"required"`
	DurationMinutes int       `validate:"required,min=15,max=300"`
	Modality        Modality  `validate:"required,oneof=in_person video_call phone_call"`
	Status          Status    `validate:"omitempty,oneof=pending confirmed cancelled completed"`
	Notes           *string   `validate:"-"`
}

func newValidator() *validator.Validate {
	return validator.New()
}

// checkInput runs struct validation and converts the first failure into the
// service's ValidationError type.
func checkInput(v *validator.Validate, in AppointmentInput) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return &ValidationError{Field: f.Field(), Reason: reasonFor(f)}
	}

	return &ValidationError{Reason: err.Error()}
}

func reasonFor(f validator.FieldError) string {
	switch f.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", f.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", f.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", f.Param())
	default:
		return fmt.Sprintf("failed %q constraint", f.Tag())
	}
}
