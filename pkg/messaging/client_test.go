package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token-1", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("From"))
		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "Thanks for calling!", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Message{SID: "SM1", Status: "queued"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	msg, err := c.Send(context.Background(),
		Credentials{AccountSID: "AC123", AuthToken: "token-1"},
		"+15550001111", "+15551234567", "Thanks for calling!")
	require.NoError(t, err)
	assert.Equal(t, "SM1", msg.SID)
	assert.Equal(t, "queued", msg.Status)
}

func TestClient_Send_MissingCredentials(t *testing.T) {
	c := NewClient("http://unused.example", zerolog.Nop())
	_, err := c.Send(context.Background(), Credentials{}, "+1555", "+1666", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing credentials")
}

func TestClient_Send_ProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid number"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zerolog.Nop())
	_, err := c.Send(context.Background(),
		Credentials{AccountSID: "AC123", AuthToken: "token-1"},
		"+15550001111", "not-a-number", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}
