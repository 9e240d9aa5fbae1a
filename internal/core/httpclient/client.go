// Package httpclient configures the HTTP client used to call OAF services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the client shared by every service interface. It sets
// no overall timeout: a filter runs until it completes or is stopped, and
// deadlines come from the request context.
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
