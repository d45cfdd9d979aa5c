package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/provider"
	"server/internal/provider/sora"
	"server/internal/provider/veo"
	"server/internal/provider/wan"
)

// Alias table resolved once; request routing never string-matches provider
// names anywhere else. Lookups are case-insensitive.
var aliases = map[string]string{
	"sora":   sora.Name,
	"sora2":  sora.Name,
	"sora-2": sora.Name,
	"veo":    veo.Name,
	"veo3":   veo.Name,
	"veo-3":  veo.Name,
	"wan":    wan.Name,
}

// Known lists the canonical provider types in a stable order.
var known = []string{sora.Name, veo.Name, wan.Name}

// Credential holds the externally supplied access configuration for one
// backend.
type Credential struct {
	APIKey  string
	BaseURL string
}

// Config wires credentials and shared plumbing into the registry.
type Config struct {
	HTTPClient *http.Client
	Logger     *infra.Logger
	Sora       Credential
	Veo        Credential
	Wan        Credential
}

// Registry resolves logical provider identifiers to configured, cached
// generator instances. It is constructed once at startup and passed by
// injection; there is no package-level instance cache.
type Registry struct {
	mu    sync.Mutex
	cfg   Config
	cache map[string]provider.Generator
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	return &Registry{cfg: cfg, cache: make(map[string]provider.Generator)}
}

// Resolve returns the generator for a logical provider name. Unknown names
// fail with ErrUnsupportedProvider; known providers without credentials fail
// with ErrProviderUnavailable so callers can degrade instead of crash.
func (r *Registry) Resolve(name string) (provider.Generator, error) {
	typ, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrUnsupportedProvider)
	}
	cred := r.credential(typ)
	if cred.APIKey == "" {
		return nil, fmt.Errorf("%s: api key not configured: %w", typ, domain.ErrProviderUnavailable)
	}

	cacheKey := typ + ":" + fingerprint(cred.APIKey)
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen, ok := r.cache[cacheKey]; ok {
		return gen, nil
	}
	gen := r.build(typ, cred)
	r.cache[cacheKey] = gen
	return gen, nil
}

// Availability describes one known provider type for capability discovery.
type Availability struct {
	Type         string                `json:"type"`
	Available    bool                  `json:"available"`
	Reason       string                `json:"reason,omitempty"`
	Capabilities provider.Capabilities `json:"capabilities"`
}

// ListAvailable reports, for every known provider type, whether it is
// currently constructible along with its capability record. No network
// calls and no jobs are started.
func (r *Registry) ListAvailable() []Availability {
	out := make([]Availability, 0, len(known))
	for _, typ := range known {
		cred := r.credential(typ)
		entry := Availability{
			Type:         typ,
			Available:    cred.APIKey != "",
			Capabilities: r.build(typ, cred).Capabilities(),
		}
		if !entry.Available {
			entry.Reason = "api key not configured"
		}
		out = append(out, entry)
	}
	return out
}

func (r *Registry) credential(typ string) Credential {
	switch typ {
	case sora.Name:
		return r.cfg.Sora
	case veo.Name:
		return r.cfg.Veo
	case wan.Name:
		return r.cfg.Wan
	}
	return Credential{}
}

func (r *Registry) build(typ string, cred Credential) provider.Generator {
	switch typ {
	case sora.Name:
		return sora.New(sora.Options{APIKey: cred.APIKey, BaseURL: cred.BaseURL, HTTPClient: r.cfg.HTTPClient, Logger: r.cfg.Logger})
	case veo.Name:
		return veo.New(veo.Options{APIKey: cred.APIKey, BaseURL: cred.BaseURL, HTTPClient: r.cfg.HTTPClient, Logger: r.cfg.Logger})
	case wan.Name:
		return wan.New(wan.Options{APIKey: cred.APIKey, BaseURL: cred.BaseURL, HTTPClient: r.cfg.HTTPClient, Logger: r.cfg.Logger})
	}
	// Unreachable for entries of the alias table.
	panic("registry: unknown provider type " + typ)
}

func fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
