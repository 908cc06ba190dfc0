package ops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.NewDispatcher(dispatch.WithLogger(logger))
	d.Register("display_profile", func(context.Context, map[string]any) (any, error) { return nil, nil })
	c := dispatch.NewCatalog()
	c.Add("display_profile", "show the sheet", nil)
	return &Server{
		Dispatcher: d,
		Catalog:    c,
		Profiles:   profile.NewManager(dir, logger),
		States:     state.NewManager(dir, logger),
		Logger:     logger,
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFunctionsListing(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/functions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []struct {
		Name    string `json:"name"`
		Purpose string `json:"purpose"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "display_profile", got[0].Name)
	assert.Equal(t, "show the sheet", got[0].Purpose)
}

func TestUserProfileView(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Profiles.SetUsername("42", "nolan"))
	s.States.Set("42", state.Adventure)

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/users/42/profile")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got struct {
		Profile struct {
			Username string `json:"username"`
		} `json:"profile"`
		State string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "nolan", got.Profile.Username)
	assert.Equal(t, state.Adventure, got.State)
}
