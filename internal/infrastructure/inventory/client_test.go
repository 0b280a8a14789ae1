package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientFor(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient(Config{Scheme: u.Scheme, Host: u.Host, Path: "/inventory/validate", Timeout: timeout}, nil)
}

func TestValidateStockSendsRequestAndForwardsCredential(t *testing.T) {
	var got dompay.StockValidationRequest
	var auth, path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("true"))
	}))
	defer srv.Close()

	ok, err := clientFor(t, srv, time.Second).ValidateStock(context.Background(), "P", 5, "Bearer abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/inventory/validate", path)
	assert.Equal(t, "Bearer abc", auth)
	assert.Equal(t, dompay.StockValidationRequest{ProductID: "P", Quantity: 5}, got)
}

func TestValidateStockDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("false\n"))
	}))
	defer srv.Close()

	ok, err := clientFor(t, srv, time.Second).ValidateStock(context.Background(), "P", 5, "Bearer abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateStockErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, "", ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "", ErrForbidden},
		{"server error", http.StatusInternalServerError, "", ErrUnexpectedStatus},
		{"not a boolean", http.StatusOK, `{"ok":true}`, ErrMalformedResponse},
		{"empty body", http.StatusOK, "", ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ok, err := clientFor(t, srv, time.Second).ValidateStock(context.Background(), "P", 1, "Bearer abc")
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, ok)
		})
	}
}

func TestValidateStockUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ok, err := clientFor(t, srv, 50*time.Millisecond).ValidateStock(context.Background(), "P", 1, "Bearer abc")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, ok)
}

func TestConfigURL(t *testing.T) {
	assert.Equal(t, "http://inventory:8080/inventory/validate",
		Config{Host: "inventory:8080", Path: "/inventory/validate"}.URL())
	assert.Equal(t, "https://inv.example.com/check",
		Config{Scheme: "https", Host: "inv.example.com", Path: "/check"}.URL())
}
