// Package lookup implementa los clientes contra el IdP externo: el cliente
// HTTP real y un directorio estático para desarrollo.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/dispatch"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
)

// Config del cliente HTTP contra el IdP.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient consulta GET {base}/identities/{id} en el IdP externo.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// identityDoc es el payload que responde el IdP.
type identityDoc struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Addresses   map[string]string `json:"addresses"`
}

func (c *HTTPClient) Lookup(ctx context.Context, identityID string) (*resolver.ExternalIdentity, error) {
	u := c.cfg.BaseURL + "/identities/" + url.PathEscape(identityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", factor.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, repository.ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: idp http %d", factor.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var doc identityDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", factor.ErrUpstreamUnavailable, err)
	}
	if doc.ID == "" {
		doc.ID = identityID
	}
	return &resolver.ExternalIdentity{
		ID:          doc.ID,
		DisplayName: doc.DisplayName,
		Addresses:   doc.Addresses,
	}, nil
}

// Static es un directorio fijo identityID -> email. Sólo desarrollo: permite
// levantar el servicio sin IdP real.
type Static struct {
	entries map[string]string
}

func NewStatic(entries map[string]string) *Static {
	if entries == nil {
		entries = map[string]string{}
	}
	return &Static{entries: entries}
}

func (s *Static) Lookup(ctx context.Context, identityID string) (*resolver.ExternalIdentity, error) {
	email, ok := s.entries[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &resolver.ExternalIdentity{
		ID:          identityID,
		DisplayName: identityID,
		Addresses: map[string]string{
			dispatch.ChannelMail: email,
		},
	}, nil
}
