package callcontrol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjector_Inject_HTTP(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	i := NewInjector(zerolog.Nop())
	err := i.Inject(context.Background(), srv.URL, "Caller is a returning customer")
	require.NoError(t, err)

	assert.Equal(t, "add-message", gotBody["type"])
	assert.Equal(t, "system", gotBody["role"])
	assert.Equal(t, "Caller is a returning customer", gotBody["content"])
}

func TestInjector_Inject_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	i := NewInjector(zerolog.Nop())
	err := i.Inject(context.Background(), srv.URL, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 410")
}

func TestInjector_Inject_WebSocket(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	i := NewInjector(zerolog.Nop())
	err := i.Inject(context.Background(), wsURL, "live context")
	require.NoError(t, err)

	msg := <-received
	assert.Equal(t, "add-message", msg["type"])
	assert.Equal(t, "live context", msg["content"])
}

func TestInjector_Inject_BadScheme(t *testing.T) {
	i := NewInjector(zerolog.Nop())
	err := i.Inject(context.Background(), "ftp://call.example/control", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported control target scheme")
}
