package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemList []item

func (l itemList) Validate() error {
	for i, it := range l {
		if it.ID == "" {
			return fmt.Errorf("item %d has no id", i)
		}
	}
	return nil
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetDecodesAndSendsBearer(t *testing.T) {
	var gotAuth, gotQuery string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("filter")
		w.Write([]byte(`[{"id":"a","name":"Alpha"},{"id":"b"}]`))
	})

	c := New(srv.URL, WithBearer("tok_123"))
	items, err := Get[itemList](context.Background(), c, "/items", url.Values{"filter": {"today"}})
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(items) != 2 || items[0].Name != "Alpha" {
		t.Errorf("unexpected items: %+v", items)
	}
	if gotAuth != "Bearer tok_123" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotQuery != "today" {
		t.Errorf("expected filter=today, got %q", gotQuery)
	}
}

func TestHTTPErrorExtractsMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested error", `{"error":{"message":"Token expired"}}`, "Token expired"},
		{"graphql errors", `{"errors":[{"message":"Not found"}]}`, "Not found"},
		{"monobank", `{"errorDescription":"Too many requests"}`, "Too many requests"},
		{"problem json", `{"title":"Invalid","detail":"Slug in use"}`, "Slug in use"},
		{"plain string error", `{"error":"forbidden"}`, "forbidden"},
		{"not json", `<html>oops</html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			})
			_, err := Get[itemList](context.Background(), New(srv.URL), "/items", nil)
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected *HTTPError, got %T (%v)", err, err)
			}
			if he.Status != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", he.Status)
			}
			if he.Message != tt.want {
				t.Errorf("expected message %q, got %q", tt.want, he.Message)
			}
			if he.Body != tt.body {
				t.Errorf("expected body to be kept verbatim, got %q", he.Body)
			}
		})
	}
}

func TestShapeErrorOnValidateFailure(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"no id"}]`))
	})
	_, err := Get[itemList](context.Background(), New(srv.URL), "/items", nil)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ShapeError, got %T (%v)", err, err)
	}
	if se.Type != "itemList" {
		t.Errorf("expected type itemList, got %q", se.Type)
	}
	if Message(err) != "Unexpected response from server" {
		t.Errorf("unexpected toast message %q", Message(err))
	}
}

func TestShapeErrorOnTypeMismatch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"a"}`))
	})
	_, err := Get[itemList](context.Background(), New(srv.URL), "/items", nil)
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ShapeError, got %T (%v)", err, err)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := Get[itemList](context.Background(), New(addr), "/items", nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T (%v)", err, err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("transport errors carry no status")
	}
}

func TestBodyOverLimitIsRejected(t *testing.T) {
	body := `[{"id":"a","name":"` + strings.Repeat("x", 64) + `"}]`
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	})

	_, err := Get[itemList](context.Background(), New(srv.URL, WithMaxBodySize(32)), "/items", nil)
	var te *TransportError
	if !errors.As(err, &te) || !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected *TransportError wrapping ErrBodyTooLarge, got %T (%v)", err, err)
	}

	items, err := Get[itemList](context.Background(), New(srv.URL, WithMaxBodySize(int64(len(body)))), "/items", nil)
	if err != nil || len(items) != 1 {
		t.Fatalf("a body exactly at the limit is read: %v, %+v", err, items)
	}
}

func TestCancelledContextIsTransportError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Get[itemList](ctx, New(srv.URL), "/items", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestGetAtExtractsPayload(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[{"id":"x","name":"Go"}]}}`))
	})
	items, err := GetAt[itemList](context.Background(), New(srv.URL), "/w/api.php", nil, "$.query.search")
	if err != nil {
		t.Fatalf("GetAt() error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "x" {
		t.Errorf("unexpected items: %+v", items)
	}

	_, err = GetAt[itemList](context.Background(), New(srv.URL), "/w/api.php", nil, "$.query.missing")
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *ShapeError for missing payload, got %v", err)
	}
}

func TestSendPostsJSON(t *testing.T) {
	var gotBody, gotType string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new","name":"Created"}`))
	})
	got, err := Send[item](context.Background(), New(srv.URL), http.MethodPost, "/items", map[string]string{"name": "Created"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("unexpected item %+v", got)
	}
	if gotType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotType)
	}
	if gotBody != `{"name":"Created"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestGraphQLErrors(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"Invalid token","status":400}]}`))
	})
	_, err := GraphQL[map[string]any](context.Background(), New(srv.URL), "/", "query { Viewer { id } }", nil)
	var ge *GraphQLError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GraphQLError, got %T (%v)", err, err)
	}
	if Message(err) != "Invalid token" {
		t.Errorf("unexpected message %q", Message(err))
	}
}

func TestURLJoinsPathsAndQuery(t *testing.T) {
	c := New("https://api.example.com/v2/")
	tests := []struct {
		path  string
		query url.Values
		want  string
	}{
		{"/tasks", nil, "https://api.example.com/v2/tasks"},
		{"tasks", url.Values{"a": {"1"}}, "https://api.example.com/v2/tasks?a=1"},
		{"https://other.example.com/x?y=1", url.Values{"z": {"2"}}, "https://other.example.com/x?y=1&z=2"},
	}
	for _, tt := range tests {
		if got := c.URL(tt.path, tt.query); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
