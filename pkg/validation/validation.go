package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// NonFieldErrors collects messages that belong to the form as a whole.
const NonFieldErrors = "__all__"

// FieldErrors maps a form field name to its error messages.
type FieldErrors url.Values

func New() FieldErrors {
	return make(FieldErrors)
}

func (e FieldErrors) Add(field, message string) {
	url.Values(e).Add(field, message)
}

func (e FieldErrors) Get(field string) string {
	return url.Values(e).Get(field)
}

func (e FieldErrors) Has(field string) bool {
	return len(e[field]) > 0
}

func (e FieldErrors) IsEmpty() bool {
	return len(e) == 0
}

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field][0]))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

// Err returns e as an error, or nil when nothing was added.
func (e FieldErrors) Err() error {
	if e.IsEmpty() {
		return nil
	}
	return e
}

func (e FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		for _, m := range messages {
			e.Add(field, m)
		}
	}
}

// MaxLength reports values longer than max characters.
func (e FieldErrors) MaxLength(field, value string, max int) {
	if n := utf8.RuneCountInString(value); n > max {
		e.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", max, n))
	}
}

func (e FieldErrors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, MessageRequired)
	}
}

const (
	MessageRequired     = "This field is required."
	MessageInvalidEmail = "Enter a valid email address."
	MessageInvalidDate  = "Enter a valid date."
	MessageInvalidValue = "Enter a valid value."
)

// FromBinding converts the error returned by gin's ShouldBind into field
// errors. Errors that are not validator errors land in NonFieldErrors.
func FromBinding(err error) FieldErrors {
	errs := New()
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add(NonFieldErrors, err.Error())
		return errs
	}
	for _, fe := range verrs {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MessageRequired
	case "email":
		return MessageInvalidEmail
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "uuid", "uuid4":
		return "Enter a valid UUID."
	case "datetime":
		return MessageInvalidDate
	default:
		return MessageInvalidValue
	}
}

// UseFormTagNames makes validator report fields under their form/json tag
// name so error keys match what the client posted.
func UseFormTagNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
}
