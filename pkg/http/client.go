// Package http builds the outbound HTTP client used for the payout provider.
package http

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// ErrRedirect is returned when the upstream answers with a redirect.
// Payout requests move money and are never replayed against another URL.
var ErrRedirect = errors.New("upstream redirect refused")

// HTTPClientConfig holds transport tuning for one upstream
type HTTPClientConfig struct {
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	MinTLSVersion uint16
}

// PayoutAPIClientConfig returns config for the payout provider API.
// A single host with low request volume (one call per payout and status query).
func PayoutAPIClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		// the overall bound comes from the request context
		DialTimeout:           5 * time.Second,
		KeepAlive:             60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 25 * time.Second,

		MinTLSVersion: tls.VersionTLS12,
	}
}

// NewHTTPClient creates a pooled client that refuses redirects
func NewHTTPClient(cfg *HTTPClientConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,

		TLSClientConfig:   &tls.Config{MinVersion: cfg.MinTLSVersion},
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return ErrRedirect
		},
	}
}
