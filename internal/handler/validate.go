package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/billing-tracker/internal/apperror"
)

// maxJSONBody caps request bodies that are decoded as JSON.
const maxJSONBody = 1 << 20

// validate checks the `validate:"..."` tags on request structs. It is safe
// for concurrent use and caches struct metadata, so one instance is shared.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names ("boxId", not "BoxID").
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and runs the validator on it.
// Any failure is an apperror validation error naming the first bad field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var fieldErr *amountError
		if errors.As(err, &fieldErr) {
			return apperror.ValidationFailed("rechargeAmount", fieldErr.Error())
		}
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
		}
		return fmt.Errorf("handler: validating request: %w", err)
	}

	return nil
}

// getValidationMessage returns a human-readable validation message.
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	default:
		return "Invalid value"
	}
}

// amount is a recharge amount as the UI sends it: a JSON number, a numeric
// string from a form input ("500"), or empty/null for "not given".
type amount struct {
	set   bool
	value float64
}

type amountError struct{ raw string }

func (e *amountError) Error() string {
	return fmt.Sprintf("Recharge amount %q is not a number", e.raw)
}

func (a *amount) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		a.set, a.value = true, v
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &amountError{raw: v}
		}
		a.set, a.value = true, f
	default:
		return &amountError{raw: string(b)}
	}
	return nil
}

// ptr returns nil when no amount was given.
func (a amount) ptr() *float64 {
	if !a.set {
		return nil
	}
	v := a.value
	return &v
}
