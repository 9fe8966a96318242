package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
// Query parameters are encoded by the client; nil maps are allowed.
type Client interface {
	Get(ctx context.Context, url string, query, headers map[string]string) (Response, error)
}
