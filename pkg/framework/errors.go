package framework

import (
	"strconv"
	"strings"
)

// MultiError collects the failures of independent operations.
type MultiError []error

// Error implements error.
func (m MultiError) Error() string {
	if len(m) == 1 {
		return m[0].Error()
	}
	msgs := make([]string, len(m))
	for i, err := range m {
		msgs[i] = err.Error()
	}
	return strconv.Itoa(len(m)) + " errors: " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is and errors.As look at every collected error.
func (m MultiError) Unwrap() []error {
	return m
}

// Append records the non-nil errors.
func (m *MultiError) Append(errs ...error) {
	for _, err := range errs {
		if err != nil {
			*m = append(*m, err)
		}
	}
}

// Err returns nil when nothing failed, the error itself when exactly one
// did, and m otherwise.
func (m MultiError) Err() error {
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}
