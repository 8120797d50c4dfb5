package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-events-sync/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. Field names in messages are
// the JSON names clients send.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	val.RegisterStructValidation(eventInputRules, domain.EventInput{})
	return val
}

// eventInputRules requires the English title and description. Location is
// optional in every language.
func eventInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(domain.EventInput)
	if strings.TrimSpace(in.Title.EN) == "" {
		sl.ReportError(in.Title.EN, "title.en", "Title", "required", "")
	}
	if strings.TrimSpace(in.Description.EN) == "" {
		sl.ReportError(in.Description.EN, "description.en", "Description", "required", "")
	}
}

// Struct validates the given struct using its validate tags.
// The returned error wraps domain.ErrBadRequest.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrBadRequest)
	}
	return nil
}
