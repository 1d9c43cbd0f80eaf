package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tutor/internal/infra"
	"tutor/internal/sqlinline"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Credential is a chat provider key kept in integration_tokens. Model and
// BaseURL are optional overrides registered with the key.
type Credential struct {
	Provider  string
	Token     string
	Model     string
	BaseURL   string
	UpdatedAt time.Time
}

// Empty reports whether no usable key was found.
func (c Credential) Empty() bool { return c.Token == "" }

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func SupportedProvider(provider string) bool {
	switch normalizeProvider(provider) {
	case ProviderOpenAI, ProviderOllama:
		return true
	}
	return false
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Lookup returns the stored credential for provider. A provider without a
// stored key yields an empty Credential and no error.
func (s *Store) Lookup(ctx context.Context, provider string) (Credential, error) {
	provider = normalizeProvider(provider)
	c := Credential{Provider: provider}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider)
	if err := row.Scan(&c.Token, &c.Model, &c.BaseURL, &c.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return Credential{Provider: provider}, nil
		}
		return Credential{}, fmt.Errorf("credentials: lookup %s: %w", provider, err)
	}
	c.Token = strings.TrimSpace(c.Token)
	c.Model = strings.TrimSpace(c.Model)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// Save stores the key for c.Provider, replacing the previous one. Non-empty
// Model and BaseURL are recorded next to it; extra is merged as metadata.
func (s *Store) Save(ctx context.Context, c Credential, extra map[string]any) (time.Time, error) {
	provider := normalizeProvider(c.Provider)
	if !SupportedProvider(provider) {
		return time.Time{}, fmt.Errorf("credentials: unsupported provider %q", c.Provider)
	}
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return time.Time{}, fmt.Errorf("credentials: %s key is required", provider)
	}
	props := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		props[k] = v
	}
	if m := strings.TrimSpace(c.Model); m != "" {
		props["model"] = m
	}
	if u := strings.TrimSpace(c.BaseURL); u != "" {
		props["base_url"] = u
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return time.Time{}, fmt.Errorf("credentials: encode properties: %w", err)
	}
	var updatedAt time.Time
	if err := s.sql.QueryRow(ctx, sqlinline.QUpsertProviderCredential, provider, token, raw).Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("credentials: save %s: %w", provider, err)
	}
	return updatedAt.UTC(), nil
}
