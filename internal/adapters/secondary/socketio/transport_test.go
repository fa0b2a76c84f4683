package socketio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Dial(t *testing.T) {
	t.Run("sends bearer header and fails fast on rejected handshake", func(t *testing.T) {
		headers := make(chan http.Header, 8)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case headers <- r.Header.Clone():
			default:
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
		defer srv.Close()

		start := time.Now()
		_, err := NewTransport(nil).Dial(context.Background(), ports.DialParams{
			URL:     srv.URL,
			Token:   "tok",
			UserID:  "u1",
			Timeout: 5 * time.Second,
		})

		require.Error(t, err)
		assert.Less(t, time.Since(start), 4*time.Second)

		select {
		case header := <-headers:
			assert.Equal(t, "Bearer tok", header.Get("Authorization"))
		case <-time.After(time.Second):
			t.Fatal("no handshake request received")
		}
	})

	t.Run("context end aborts the dial", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewTransport(nil).Dial(ctx, ports.DialParams{URL: srv.URL, Token: "tok"})

		require.Error(t, err)
	})
}
