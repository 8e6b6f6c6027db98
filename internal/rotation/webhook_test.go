package rotation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

func TestWebhookClientFetch(t *testing.T) {
	var received webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"value":"rotated-value"}`))
	}))
	defer srv.Close()

	client := NewWebhookClient(0)
	got, err := client.Fetch(context.Background(), srv.URL, "DB_URL", "production", "proj-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != "rotated-value" {
		t.Errorf("Fetch() = %q, want rotated-value", got)
	}
	if received.SecretKey != "DB_URL" || received.Environment != "production" || received.ProjectID != "proj-1" {
		t.Errorf("webhook received %+v", received)
	}
}

func TestWebhookClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"non-2xx",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		},
		{
			"malformed body",
			func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) },
		},
		{
			"missing value",
			func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"status":"ok"}`)) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewWebhookClient(0)
			_, err := client.Fetch(context.Background(), srv.URL, "K", "production", "p")
			if !kferrors.IsExternalCall(err) {
				t.Errorf("Fetch() error = %v, want external call failure", err)
			}
		})
	}
}

func TestWebhookClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"value":"too-late"}`))
	}))
	defer srv.Close()

	client := NewWebhookClient(50 * time.Millisecond)
	start := time.Now()
	_, err := client.Fetch(context.Background(), srv.URL, "K", "production", "p")
	if !kferrors.IsExternalCall(err) {
		t.Errorf("Fetch() error = %v, want external call failure", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Fetch() took %v, timeout not enforced", elapsed)
	}
}
