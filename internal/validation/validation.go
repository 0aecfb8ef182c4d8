package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxInstanceIDLength bounds widget instance ids taken from request paths.
const MaxInstanceIDLength = 64

// ErrInstanceIDTooLong is returned when an instance id exceeds MaxInstanceIDLength.
var ErrInstanceIDTooLong = errors.New("widget id too long")

// ErrInstanceIDInvalidChars is returned when an instance id contains disallowed characters.
var ErrInstanceIDInvalidChars = errors.New("widget id contains invalid characters")

// ValidateInstanceID trims the input and restricts it to ASCII letters, digits,
// hyphen and underscore. The empty id is valid and names the shared widget.
func ValidateInstanceID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len(s) > MaxInstanceIDLength {
		return "", ErrInstanceIDTooLong
	}
	for _, c := range s {
		if !isAllowedInstanceRune(c) {
			return "", ErrInstanceIDInvalidChars
		}
	}
	return s, nil
}

func isAllowedInstanceRune(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	return r == '-' || r == '_'
}

// CredentialsRequest is the body of a credentials PUT.
type CredentialsRequest struct {
	ApplicationKey string `json:"applicationKey" validate:"required,printascii,max=128"`
	APIKey         string `json:"apiKey" validate:"required,printascii,max=128"`
	MACAddress     string `json:"macAddress" validate:"required,mac"`
	LocationName   string `json:"locationName" validate:"omitempty,max=64"`
}

// Normalize trims whitespace and upper-cases the MAC address.
func (c *CredentialsRequest) Normalize() {
	c.ApplicationKey = strings.TrimSpace(c.ApplicationKey)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.MACAddress = strings.ToUpper(strings.TrimSpace(c.MACAddress))
	c.LocationName = strings.TrimSpace(c.LocationName)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator; it caches struct metadata and
// is safe for concurrent use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// FieldError describes one failed field.
type FieldError struct {
	Field string
	Tag   string
}

func (e FieldError) Error() string {
	switch e.Tag {
	case "required":
		return e.Field + " is required"
	case "mac":
		return e.Field + " must be a MAC address"
	case "max":
		return e.Field + " is too long"
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field, e.Tag)
	}
}

// RequestError collects field errors from one request.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateCredentials checks req after normalising it. Returns *RequestError
// for invalid input.
func ValidateCredentials(req *CredentialsRequest) error {
	req.Normalize()
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &RequestError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Tag: fe.Tag()})
	}
	return out
}
