package download

import (
	"net/http"
	"time"
)

// Transport performs a blocking HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}

// NewHTTPClient builds the client shared by feeds, strategies and downloads.
func NewHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if userAgent != "" {
		rt = &userAgentTransport{userAgent: userAgent, next: rt}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}
