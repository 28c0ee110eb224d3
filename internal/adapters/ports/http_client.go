package ports

import "net/http"

// HTTPClient is the slice of *http.Client the payout API adapter needs.
// Tests substitute a stub that returns canned responses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
