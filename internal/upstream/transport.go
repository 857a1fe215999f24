package upstream

import (
	"context"
	"net/http"
)

// Request describes a single upstream GET.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw result of one upstream GET, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs one GET without any retry policy. Non-2xx statuses are
// returned as responses, not errors; errors mean the request did not complete.
type Transport interface {
	Get(ctx context.Context, req Request) (Response, error)
}
