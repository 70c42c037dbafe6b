// Package checkout holds the declarative checkout form schema shared by the
// submission flow and the HTTP layer.
package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	MaxNotesLength   = 500
	minAddressLength = 5
	minPhoneDigits   = 6
	maxPhoneDigits   = 15
)

var (
	linkPattern     = regexp.MustCompile(`(?i)(http|www\.|ftp)`)
	capPattern      = regexp.MustCompile(`^\d{5}$`)
	provincePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9 ./()-]+$`)
)

// Form is the customer part of a checkout submission. Website is a honeypot
// that real browsers leave empty.
type Form struct {
	Name        string                  `json:"name" validate:"required,min=2,max=120"`
	Phone       string                  `json:"phone" validate:"required,phone"`
	Email       string                  `json:"email" validate:"omitempty,email,max=100"`
	Fulfillment enums.FulfillmentMethod `json:"fulfillment" validate:"required,oneof=shipping pickup"`
	Address     string                  `json:"address" validate:"max=200"`
	CivicNumber string                  `json:"civic_number" validate:"max=20"`
	City        string                  `json:"city" validate:"max=100"`
	Province    string                  `json:"province" validate:"max=10"`
	PostalCode  string                  `json:"cap" validate:"max=10"`
	Notes       string                  `json:"notes" validate:"max=500,nolinks"`
	Website     string                  `json:"website" validate:"max=0"`
}

// messages maps "field.rule" to the text shown next to the field.
var messages = map[string]string{
	"name.required":         "name is required",
	"name.min":              "name must have at least 2 characters",
	"name.max":              "name is too long",
	"phone.required":        "phone is required",
	"phone.phone":           "phone number is not valid",
	"email.email":           "email is not valid",
	"email.max":             "email is too long",
	"fulfillment.required":  "choose shipping or pickup",
	"fulfillment.oneof":     "choose shipping or pickup",
	"address.address":       "address is required",
	"civic_number.required": "civic number is required",
	"city.required":         "city is required",
	"province.province":     "province (2 letters)",
	"cap.cap":               "CAP is not valid (5 digits)",
	"notes.max":             fmt.Sprintf("notes must be at most %d characters", MaxNotesLength),
	"notes.nolinks":         "links are not allowed in notes",
	"website.max":           "bot detected",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "nolinks", func(fl validator.FieldLevel) bool {
		return !linkPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
	mustRegister(v, "cap", func(fl validator.FieldLevel) bool {
		return capPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "province", func(fl validator.FieldLevel) bool {
		return provincePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(shippingRules, Form{})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// shippingRules applies the address block only when the order ships.
func shippingRules(sl validator.StructLevel) {
	form, ok := sl.Current().Interface().(Form)
	if !ok || form.Fulfillment != enums.FulfillmentShipping {
		return
	}
	v := sl.Validator()
	if utf8.RuneCountInString(form.Address) < minAddressLength {
		sl.ReportError(form.Address, "address", "Address", "address", "")
	}
	if form.CivicNumber == "" {
		sl.ReportError(form.CivicNumber, "civic_number", "CivicNumber", "required", "")
	}
	if form.City == "" {
		sl.ReportError(form.City, "city", "City", "required", "")
	}
	if v.Var(form.Province, "province") != nil {
		sl.ReportError(form.Province, "province", "Province", "province", "")
	}
	if v.Var(form.PostalCode, "cap") != nil {
		sl.ReportError(form.PostalCode, "cap", "PostalCode", "cap", "")
	}
}

// Normalize trims every field and upper-cases the province.
func (f Form) Normalize() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Email = strings.TrimSpace(f.Email)
	f.Fulfillment = enums.FulfillmentMethod(strings.ToLower(strings.TrimSpace(string(f.Fulfillment))))
	f.Address = strings.TrimSpace(f.Address)
	f.CivicNumber = strings.TrimSpace(f.CivicNumber)
	f.City = strings.TrimSpace(f.City)
	f.Province = strings.ToUpper(strings.TrimSpace(f.Province))
	f.PostalCode = strings.TrimSpace(f.PostalCode)
	f.Notes = strings.TrimSpace(f.Notes)
	return f
}

// Validate runs the schema against the normalized form and returns a
// field -> message map. A nil map means the form is valid.
func Validate(form Form) map[string]string {
	err := validate.Struct(form.Normalize())
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return map[string]string{"form": err.Error()}
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		if _, seen := fields[field]; seen {
			continue
		}
		fields[field] = message(field, fe.Tag())
	}
	return fields
}

func message(field, tag string) string {
	if msg, ok := messages[field+"."+tag]; ok {
		return msg
	}
	return "is invalid"
}

// IsPhone accepts digits with common separators and between 6 and 15 digits.
func IsPhone(value string) bool {
	if !phonePattern.MatchString(value) {
		return false
	}
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// IsBot reports whether the honeypot field was filled in.
func (f Form) IsBot() bool {
	return strings.TrimSpace(f.Website) != ""
}
