package google

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const requestTimeout = 30 * time.Second

// NewHTTPClient builds the client used for every provider call, token endpoint included.
// insecureSkipVerify disables TLS certificate verification.
func NewHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		log.Warn("TLS certificate verification is DISABLED for all Google API calls")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}
}

// withHTTPClient makes golang.org/x/oauth2 use client for token requests.
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
