package util

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient returns a client for outbound API calls. An explicit proxy
// applies to every scheme; empty falls back to HTTP_PROXY and HTTPS_PROXY.
func NewHTTPClient(timeout time.Duration, proxy string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", proxy)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
