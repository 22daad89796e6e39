// Package validation checks inbound events against the closed event shape
// before they are admitted to the queue.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"eventpipe/models"
)

const (
	RuleType               = "type"
	RuleRequired           = "required"
	RuleDateTime           = "date_time"
	RuleAdditionalProperty = "additional_property"
)

// Violation describes one failed constraint.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error carries every violation found in a payload, not just the first.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

// eventFields is the closed set of accepted keys, in declaration order.
var eventFields = []string{"site_id", "event_type", "path", "user_id", "timestamp"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateEvent decodes raw, coerces scalar fields to strings and checks the
// result. It returns a *Error listing all violations on failure.
func ValidateEvent(raw []byte) (models.Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.Event{}, &Error{Violations: []Violation{{
			Field:   "$",
			Rule:    RuleType,
			Message: "payload must be a JSON object",
		}}}
	}

	var violations []Violation
	typeFailed := make(map[string]bool)
	values := make(map[string]string, len(eventFields))

	for _, name := range eventFields {
		rawValue, ok := fields[name]
		if !ok {
			continue
		}
		s, ok := coerceString(rawValue)
		if !ok {
			typeFailed[name] = true
			violations = append(violations, Violation{
				Field:   name,
				Rule:    RuleType,
				Message: "must be a string",
			})
			continue
		}
		values[name] = s
	}

	var extra []string
	for name := range fields {
		if !isEventField(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		violations = append(violations, Violation{
			Field:   name,
			Rule:    RuleAdditionalProperty,
			Message: "is not an allowed property",
		})
	}

	event := models.Event{
		SiteID:    values["site_id"],
		EventType: values["event_type"],
		Path:      values["path"],
		UserID:    values["user_id"],
		Timestamp: values["timestamp"],
	}

	if err := validate.Struct(event); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return models.Event{}, fmt.Errorf("validate event: %w", err)
		}
		for _, fe := range fieldErrs {
			if typeFailed[fe.Field()] {
				continue
			}
			violations = append(violations, toViolation(fe))
		}
	}

	if len(violations) > 0 {
		return models.Event{}, &Error{Violations: violations}
	}
	return event, nil
}

// coerceString narrows a JSON scalar to its string form. Objects and arrays
// are never coerced.
func coerceString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case 'n':
		return "", true
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", false
		}
		if b {
			return "true", true
		}
		return "false", true
	case '{', '[':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}

func isEventField(name string) bool {
	for _, f := range eventFields {
		if f == name {
			return true
		}
	}
	return false
}

func toViolation(fe validator.FieldError) Violation {
	v := Violation{Field: fe.Field()}
	switch fe.Tag() {
	case "required":
		v.Rule = RuleRequired
		v.Message = "is required and must be non-empty"
	case "datetime":
		v.Rule = RuleDateTime
		v.Message = "must be an ISO-8601 date-time (RFC 3339)"
	default:
		v.Rule = fe.Tag()
		v.Message = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return v
}
