package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
		body   string
	}{
		{"memory", nil, http.StatusOK, `{"status":"ok","database":"memory"}`},
		{"db up", pingerFunc(func(context.Context) error { return nil }), http.StatusOK, `{"status":"ok","database":"ok"}`},
		{"db down", pingerFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable, `{"status":"degraded","database":"unreachable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.db).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
