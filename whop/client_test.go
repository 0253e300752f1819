package whop

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimmerhq/skimmer/engine"
)

func TestClientRequests(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	type captured struct {
		method string
		path   string
		auth   string
		body   map[string]any
	}
	var last captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = captured{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			json.Unmarshal(b, &last.body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_123", nil)

	require.NoError(c.DeleteMessage(ctx, "c1", "msg_1"))
	assert.Equal(http.MethodDelete, last.method)
	assert.Equal("/channels/c1/messages/msg_1", last.path)
	assert.Equal("Bearer key_123", last.auth)

	require.NoError(c.SendDM(ctx, "user_1", "be nice"))
	assert.Equal("/users/user_1/dm", last.path)
	assert.Equal("be nice", last.body["message"])

	require.NoError(c.TimeoutUser(ctx, "user_1", 600))
	assert.Equal("/users/user_1/timeout", last.path)
	assert.Equal(float64(600), last.body["duration"])

	require.NoError(c.NotifyChannel(ctx, "mod-alerts", "heads up"))
	assert.Equal("/channels/mod-alerts/messages", last.path)
	assert.Equal("heads up", last.body["content"])

	require.NoError(c.HideContent(ctx, "f1", "post_1"))
	assert.Equal("/forums/f1/posts/post_1/hide", last.path)
}

func TestClientErrorMapping(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_123", nil)
	err := c.DeleteMessage(ctx, "c1", "msg_1")
	assert.Error(err)
	// missing platform operations are not hard errors
	assert.True(errors.Is(err, engine.ErrNotSupported))

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv2.Close()

	c2 := NewClient(srv2.URL, "key_123", nil)
	err = c2.MuteUser(ctx, "user_1", 60)
	assert.Error(err)
	assert.False(errors.Is(err, engine.ErrNotSupported))
}
