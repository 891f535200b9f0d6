package schema

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var flsIDPattern = regexp.MustCompile(`^fls_[A-Za-z0-9]{10,14}$`)

// ValidFLSID reports whether id has the fls_XXXXXXXXXX form.
func ValidFLSID(id string) bool { return flsIDPattern.MatchString(id) }

// FieldError is one structural problem at a JSON field path such as
// "all_rust.accepted_matches[0].score".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationError lists every structural problem found in one record.
type ValidationError struct {
	GuidelineID string
	Fields      []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	prefix := "invalid record"
	if e.GuidelineID != "" {
		prefix = "invalid record for " + e.GuidelineID
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(parts, "; "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "flsid", func(fl validator.FieldLevel) bool {
		return ValidFLSID(fl.Field().String())
	})
	mustRegister(v, "nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "applicability", func(fl validator.FieldLevel) bool {
		return Applicability(fl.Field().String()).Valid()
	})
	mustRegister(v, "adjusted_category", func(fl validator.FieldLevel) bool {
		return AdjustedCategory(fl.Field().String()).Valid()
	})
	mustRegister(v, "rationale_type", func(fl validator.FieldLevel) bool {
		return RationaleType(fl.Field().String()).Valid()
	})
	mustRegister(v, "confidence", func(fl validator.FieldLevel) bool {
		return Confidence(fl.Field().String()).Valid()
	})
	mustRegister(v, "decision", func(fl validator.FieldLevel) bool {
		return DecisionKind(fl.Field().String()).Valid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validator: %v", tag, err))
	}
}

// ValidateDecision checks a decoded decision and returns a
// *ValidationError naming every offending field, or nil. A decision kind
// is required at the top level or in both contexts.
func ValidateDecision(rec *DecisionRecord) error {
	out := &ValidationError{GuidelineID: rec.GuidelineID}
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating %s: %w", rec.GuidelineID, err)
		}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Path:    fieldPath(fe.Namespace()),
				Message: fieldMessage(fe),
			})
		}
	}
	if rec.Decision == "" {
		for _, c := range Contexts {
			if rec.Entry(c).Decision == "" {
				out.Fields = append(out.Fields, FieldError{
					Path:    string(c) + ".decision",
					Message: "must not be empty unless decision is set at the top level",
				})
			}
		}
	}
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

var pathCleaner = strings.NewReplacer(".Uses[", "[", ".Waiver.", ".")

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return pathCleaner.Replace("." + rest)[1:]
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "nonblank":
		return "must not be empty"
	case "flsid":
		return fmt.Sprintf("invalid FLS id %q", fe.Value())
	case "min":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date in %s form", fe.Param())
	case "applicability", "adjusted_category", "rationale_type", "confidence", "decision":
		return fmt.Sprintf("invalid %s %q", fe.Tag(), fe.Value())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}
