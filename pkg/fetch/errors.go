package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is returned when the upstream answers outside the 2xx range.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
	// Message is the first human-readable message found in a structured
	// error body, or empty.
	Message string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// TransportError wraps a failure below HTTP: DNS, refused connections,
// timeouts, cancelled contexts.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ShapeError reports an upstream body that does not match the declared
// response type, either because it failed to decode or because its
// Validate method rejected it.
type ShapeError struct {
	Type string
	Err  error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected %s response shape: %v", e.Type, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// GraphQLError carries the messages of a GraphQL "errors" array.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// messagePaths are tried in order against JSON error bodies.
var messagePaths = []string{
	"$.error.message",
	"$.errors[0].message",
	"$.errorDescription",
	"$.error_description",
	"$.detail",
	"$.message",
	"$.error",
	"$.title",
}

func newHTTPError(method, url string, status int, body []byte) *HTTPError {
	e := &HTTPError{
		Method: method,
		URL:    url,
		Status: status,
		Body:   string(body),
	}
	doc, err := parseDocument(body)
	if err != nil {
		return e
	}
	for _, p := range messagePaths {
		v, ok, err := lookup(doc, p)
		if err != nil || !ok {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
			e.Message = strings.TrimSpace(s)
			break
		}
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Message turns a Fetcher or Mutator error into toast text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Message != "" {
			return he.Message
		}
		return fmt.Sprintf("%d %s", he.Status, http.StatusText(he.Status))
	}
	var ge *GraphQLError
	if errors.As(err, &ge) && len(ge.Messages) > 0 {
		return ge.Messages[0]
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	var se *ShapeError
	if errors.As(err, &se) {
		return "Unexpected response from server"
	}
	return err.Error()
}
