package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type providerView struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Available       bool       `json:"available"`
	Reason          string     `json:"reason,omitempty"`
	Healthy         *bool      `json:"healthy,omitempty"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
	Capabilities    any        `json:"capabilities,omitempty"`
}

// ProvidersList returns every known provider with its configured
// availability and advertised capabilities, annotated with stored health
// when the catalog has a record for it.
func (a *App) ProvidersList(w http.ResponseWriter, r *http.Request) {
	items := a.Providers.ListAvailable()

	views := make([]providerView, 0, len(items))
	for _, item := range items {
		views = append(views, providerView{
			Type:         item.Type,
			Available:    item.Available,
			Reason:       item.Reason,
			Capabilities: item.Capabilities,
		})
	}

	if a.Catalog != nil {
		records, err := a.Catalog.ListActive(r.Context())
		if err != nil {
			a.Logger.Error().Err(err).Msg("load provider catalog")
		} else {
			byType := make(map[string]int, len(views))
			for i, v := range views {
				byType[v.Type] = i
			}
			for _, rec := range records {
				i, ok := byType[rec.Type]
				if !ok {
					continue
				}
				healthy := rec.IsHealthy
				views[i].Name = rec.Name
				views[i].Healthy = &healthy
				views[i].LastHealthCheck = rec.LastHealthCheck
			}
		}
	}

	a.json(w, http.StatusOK, map[string]any{"providers": views})
}

// ProviderGet returns a single provider's availability and capabilities,
// annotated with its stored health record when one exists.
func (a *App) ProviderGet(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "provider_type")

	for _, item := range a.Providers.ListAvailable() {
		if item.Type != typ {
			continue
		}
		view := providerView{
			Type:         item.Type,
			Available:    item.Available,
			Reason:       item.Reason,
			Capabilities: item.Capabilities,
		}
		if a.Catalog != nil {
			rec, err := a.Catalog.GetByType(r.Context(), typ)
			switch {
			case err == nil:
				healthy := rec.IsHealthy
				view.Name = rec.Name
				view.Healthy = &healthy
				view.LastHealthCheck = rec.LastHealthCheck
			case !errors.Is(err, domain.ErrNotFound):
				a.Logger.Error().Err(err).Str("provider", typ).Msg("load provider record")
			}
		}
		a.json(w, http.StatusOK, view)
		return
	}
	a.error(w, http.StatusNotFound, "not_found", "Unknown video provider")
}
