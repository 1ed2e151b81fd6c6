package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
)

func TestHTTPClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/identities/u-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u-1","display_name":"Ada","addresses":{"mail":"ada@example.com"}}`))
		case "/identities/ghost":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "sekrit"})

	ext, err := c.Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", ext.ID)
	assert.Equal(t, "Ada", ext.DisplayName)
	assert.Equal(t, "ada@example.com", ext.Addresses["mail"])

	_, err = c.Lookup(context.Background(), "ghost")
	assert.True(t, repository.IsNotFound(err))

	_, err = c.Lookup(context.Background(), "boom")
	assert.True(t, errors.Is(err, factor.ErrUpstreamUnavailable))
}

func TestHTTPClient_LookupServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // conexión rechazada

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := c.Lookup(context.Background(), "u-1")
	assert.True(t, errors.Is(err, factor.ErrUpstreamUnavailable))
}

func TestStatic_Lookup(t *testing.T) {
	s := NewStatic(map[string]string{"u-1": "ada@example.com"})

	ext, err := s.Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", ext.Addresses["mail"])

	_, err = s.Lookup(context.Background(), "ghost")
	assert.True(t, repository.IsNotFound(err))
}
