package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when the requested product or category does not
// exist in the store. Callers must distinguish this from infrastructure
// errors to return the correct HTTP status code.
var ErrNotFound = errors.New("catalog: not found")

// ErrPermission is returned when the acting user may not perform a write.
// It is checked before the target resource is read.
var ErrPermission = errors.New("catalog: permission denied")

// ValidationError carries a field → message map, mirroring the shape the
// API returns as a 400 body. No mutation is performed when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", k, e.Fields[k])
	}
	return b.String()
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
