package validate

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/event"
)

// Issue is a single finding about one logical field of a payload.
type Issue struct {
	Field    string         `json:"field"`
	Severity event.Severity `json:"severity"`
	Message  string         `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationErrors carries every ERROR issue found in a payload.
type ValidationErrors []Issue

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, is := range v {
		msgs[i] = is.String()
	}
	return fmt.Sprintf("validation failed with %d error(s): %s", len(v), strings.Join(msgs, "; "))
}

// Details renders the issues as the structured details of a PipelineError.
func (v ValidationErrors) Details() map[string]interface{} {
	issues := make([]map[string]interface{}, len(v))
	for i, is := range v {
		issues[i] = map[string]interface{}{
			"field":    is.Field,
			"severity": string(is.Severity),
			"message":  is.Message,
		}
	}
	return map[string]interface{}{"issues": issues}
}

// collector accumulates issues while a payload is inspected.
type collector struct {
	errs  ValidationErrors
	warns []Issue
}

func (c *collector) errorf(field, format string, args ...interface{}) {
	c.errs = append(c.errs, Issue{Field: field, Severity: event.SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) warnf(field, format string, args ...interface{}) {
	c.warns = append(c.warns, Issue{Field: field, Severity: event.SeverityWarn, Message: fmt.Sprintf(format, args...)})
}
