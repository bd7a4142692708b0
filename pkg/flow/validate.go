package flow

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Step1Input carries the first form page. Field rules mirror the portal
// form: a well-formed email, a real name, a dialable contact number, an
// enumerated gender and an ISO date of birth.
type Step1Input struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required,min=2"`
	Contact     string `json:"contact" validate:"required,min=10"`
	Gender      string `json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

// Step2Input carries the second form page. PhotoReference is optional; the
// upload endpoint fills it server-side, but a client may echo it back.
type Step2Input struct {
	Age                  int    `json:"age" validate:"required,gte=18,lte=100"`
	District             string `json:"district" validate:"required"`
	Category             string `json:"category" validate:"required,oneof=Open OBC SC ST VJNT SEBC SBC"`
	HighestQualification string `json:"highest_qualification" validate:"required"`
	PhotoReference       string `json:"photo_reference" validate:"omitempty,max=512"`
}

// FieldErrors maps a form field (json name) to a human-readable message.
// It satisfies error so a failed validation can flow through the store's
// error return without a second channel.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report errors under the json field names the client sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStep1 returns nil or the per-field errors. Nothing is persisted on
// failure; the caller stays on step 1.
func ValidateStep1(in Step1Input) FieldErrors {
	return translate(validate.Struct(in))
}

// ValidateStep2 returns nil or the per-field errors.
func ValidateStep2(in Step2Input) FieldErrors {
	return translate(validate.Struct(in))
}

func translate(err error) FieldErrors {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{"form": err.Error()}
	}
	fe := make(FieldErrors, len(verrs))
	for _, e := range verrs {
		fe[e.Field()] = message(e)
	}
	return fe
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("too short (min %s characters)", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("too long (max %s)", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	}
	return "invalid value"
}
