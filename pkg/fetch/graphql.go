package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

// GraphQL posts query to path and decodes the "data" member into T. A
// non-empty "errors" array becomes a *GraphQLError even on HTTP 200. Servers
// that answer GraphQL errors with a non-2xx status surface as *HTTPError with
// the first message extracted.
func GraphQL[T any](ctx context.Context, c *Client, path, query string, vars map[string]any) (T, error) {
	var out T
	data, err := c.Do(ctx, http.MethodPost, path, nil, graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return out, err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return out, &ShapeError{Type: "graphql", Err: err}
	}
	if len(resp.Errors) > 0 {
		gerr := &GraphQLError{}
		for _, e := range resp.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
		}
		return out, gerr
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return out, &ShapeError{Type: typeName(&out), Err: fmt.Errorf("missing data")}
	}
	err = Decode(resp.Data, &out)
	return out, err
}
