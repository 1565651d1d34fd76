// Package validate binds JSON request bodies and checks them against struct
// tags, producing the API's validation error shape.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

const maxBody = 1 << 20

// MaxAmount is the largest value a NUMERIC(18,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999999999.99")

var (
	pinRe    = regexp.MustCompile(`^[0-9]{4,6}$`)
	msisdnRe = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{6,20}$`)
	symbolRe = regexp.MustCompile(`^[A-Za-z0-9.\-]{1,12}$`)
)

// FieldError is one entry of the "details" array.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("pin", func(fl validator.FieldLevel) bool { return pinRe.MatchString(fl.Field().String()) })
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool { return msisdnRe.MatchString(fl.Field().String()) })
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool { return symbolRe.MatchString(fl.Field().String()) })
	// gt and required see decimals as float64; these rules read the decimal itself
	_ = v.RegisterValidation("cents", func(fl validator.FieldLevel) bool {
		d, ok := decimalField(fl)
		return ok && d.Equal(d.Round(2))
	})
	_ = v.RegisterValidation("maxamount", func(fl validator.FieldLevel) bool {
		d, ok := decimalField(fl)
		return ok && d.LessThanOrEqual(MaxAmount)
	})
	return &Validator{v: v}
}

// decimalField recovers the decimal.Decimal behind a field that the custom
// type func has already converted.
func decimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	parent := fl.Parent()
	for parent.Kind() == reflect.Pointer {
		if parent.IsNil() {
			return decimal.Decimal{}, false
		}
		parent = parent.Elem()
	}
	if parent.Kind() != reflect.Struct {
		return decimal.Decimal{}, false
	}
	f := parent.FieldByName(fl.StructFieldName())
	if !f.IsValid() || !f.CanInterface() {
		return decimal.Decimal{}, false
	}
	d, ok := f.Interface().(decimal.Decimal)
	return d, ok
}

// Struct validates s and returns a validation_failed error listing every
// failing field.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validation", err)
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Message: message(fe)})
	}
	return apperr.BadRequest(apperr.CodeValidation, "request validation failed").WithDetails(details)
}

// Bind decodes the JSON body into dst and validates it. Unknown fields and
// trailing data are rejected as bad_json.
func (v *Validator) Bind(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.BadRequest(apperr.CodeBadJSON, "malformed JSON body: "+jsonReason(err))
	}
	if dec.More() {
		return apperr.BadRequest(apperr.CodeBadJSON, "malformed JSON body: trailing data")
	}
	return v.Struct(dst)
}

func jsonReason(err error) string {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "empty body"
	case errors.As(err, &syntax):
		return fmt.Sprintf("syntax error at offset %d", syntax.Offset)
	case errors.As(err, &typ):
		return fmt.Sprintf("field %q must be %s", typ.Field, typ.Type)
	}
	return err.Error()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "iso4217":
		return fe.Field() + " must be an ISO 4217 currency code"
	case "pin":
		return fe.Field() + " must be 4 to 6 digits"
	case "msisdn":
		return fe.Field() + " must be a phone number in international format"
	case "symbol":
		return fe.Field() + " must be a ticker symbol"
	case "cents":
		return fe.Field() + " must have at most two decimal places"
	case "maxamount":
		return fe.Field() + " must be at most " + MaxAmount.String()
	case "eqfield":
		return fe.Field() + " must match " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
