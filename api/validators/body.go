// Package validators decodes request bodies and reports validation failures as
// VALIDATION_ERROR responses keyed by JSON field name.
package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sapira-ai/pharo-backend/pkg/enums"
	pkgerrors "github.com/sapira-ai/pharo-backend/pkg/errors"
)

const maxBodyBytes = 1 << 20

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("triage_decision", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseTriageDecision(fl.Field().String())
		return err == nil
	})
	return v
}()

// messages render a failed tag; the argument is the tag parameter.
var messages = map[string]func(string) string{
	"required":        func(string) string { return "is required" },
	"email":           func(string) string { return "must be a valid email" },
	"uuid":            func(string) string { return "must be a valid UUID" },
	"slug":            func(string) string { return "must be lowercase letters, digits and dashes" },
	"triage_decision": func(string) string { return "must be accept or decline" },
	"min":             func(p string) string { return "must be at least " + p },
	"max":             func(p string) string { return "must be at most " + p },
	"oneof":           func(p string) string { return "must be one of: " + p },
}

// DecodeJSONBody strictly decodes one JSON object into dest and validates it.
// Unknown fields and trailing data are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return ValidateStruct(dest)
}

func ValidateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := "is invalid"
		if render, ok := messages[fe.Tag()]; ok {
			msg = render(fe.Param())
		}
		details[fieldPath(fe)] = msg
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the top-level struct name, so nested fields read
// "messages[0].text".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
