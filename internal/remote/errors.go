package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/five82/rebbit/internal/board"
)

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// classify wraps err in the board error kind matching op and the failure.
func classify(op string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return board.NotFound(op, err)
	}
	switch op {
	case "load", "search":
		return board.LoadFailed(op, err)
	default:
		return board.WriteFailed(op, err)
	}
}
