package http

import (
	"crypto/tls"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_PayoutAPIConfig(t *testing.T) {
	cfg := PayoutAPIClientConfig()
	client := NewHTTPClient(cfg, 30*time.Second)

	assert.Equal(t, 30*time.Second, client.Timeout)
	transport, ok := client.Transport.(*stdhttp.Transport)
	require.True(t, ok)
	assert.Equal(t, cfg.MaxConnsPerHost, transport.MaxConnsPerHost)
	assert.Equal(t, cfg.ResponseHeaderTimeout, transport.ResponseHeaderTimeout)
	assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
	assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
}

func TestNewHTTPClient_RefusesRedirects(t *testing.T) {
	followed := false
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path == "/elsewhere" {
			followed = true
			return
		}
		stdhttp.Redirect(w, r, "/elsewhere", stdhttp.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	client := NewHTTPClient(PayoutAPIClientConfig(), 5*time.Second)
	req, err := stdhttp.NewRequestWithContext(t.Context(), stdhttp.MethodPost, srv.URL+"/payouts", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.ErrorIs(t, err, ErrRedirect)
	assert.False(t, followed)
}
