package registry

import (
	"errors"
	"testing"

	"server/internal/domain"
)

func newTestRegistry() *Registry {
	return New(Config{
		Sora: Credential{APIKey: "sk-sora"},
		Veo:  Credential{APIKey: "sk-veo"},
	})
}

func TestResolveAliases(t *testing.T) {
	r := newTestRegistry()
	for _, name := range []string{"sora", "Sora", "SORA2", "sora-2", " sora "} {
		gen, err := r.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if gen.Name() != "sora" {
			t.Errorf("Resolve(%q).Name() = %q", name, gen.Name())
		}
	}

	gen, err := r.Resolve("veo-3")
	if err != nil {
		t.Fatalf("Resolve(veo-3): %v", err)
	}
	if gen.Name() != "veo3" {
		t.Errorf("name = %q, want veo3", gen.Name())
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("runway")
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestResolveWithoutCredentials(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("wan")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestResolveCachesInstances(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Resolve("sora")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := r.Resolve("sora-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != b {
		t.Error("aliases of one type with one key produced distinct instances")
	}
}

func TestListAvailable(t *testing.T) {
	r := newTestRegistry()
	items := r.ListAvailable()
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}

	byType := make(map[string]Availability, len(items))
	for _, item := range items {
		byType[item.Type] = item
	}
	if !byType["sora"].Available || !byType["veo3"].Available {
		t.Errorf("configured providers reported unavailable: %+v", byType)
	}
	if byType["wan"].Available {
		t.Error("wan has no key and should be unavailable")
	}
	if byType["wan"].Reason == "" {
		t.Error("unavailable provider missing reason")
	}
	if byType["sora"].Capabilities.MaxDurationSeconds == 0 {
		t.Error("capabilities not populated")
	}
}
