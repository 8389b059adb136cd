package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nanato/wp-github-updates/pkg/updates"
)

type transientFilter func(ctx context.Context, t *updates.Transient) (*updates.Transient, error)

func (s *Server) filterTransient(w http.ResponseWriter, r *http.Request, filter func(c *components) transientFilter) {
	var t updates.Transient
	if err := decodeJSON(r, &t); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := filter(c)(r.Context(), &t)
	if err != nil {
		s.writeError(w, r, err, "could not check for updates")
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) checkPluginUpdates(w http.ResponseWriter, r *http.Request) {
	s.filterTransient(w, r, func(c *components) transientFilter {
		return s.checker(c).CheckPluginUpdates
	})
}

func (s *Server) checkThemeUpdates(w http.ResponseWriter, r *http.Request) {
	s.filterTransient(w, r, func(c *components) transientFilter {
		return s.checker(c).CheckThemeUpdates
	})
}

type infoProvider func(ctx context.Context, slug string) (*updates.Info, error)

func (s *Server) packageInfo(w http.ResponseWriter, r *http.Request, provider func(c *components) infoProvider) {
	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := provider(c)(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), info)
	s.writeJSON(w, info)
}

func (s *Server) pluginInfo(w http.ResponseWriter, r *http.Request) {
	s.packageInfo(w, r, func(c *components) infoProvider {
		return s.checker(c).PluginInfo
	})
}

func (s *Server) themeInfo(w http.ResponseWriter, r *http.Request) {
	s.packageInfo(w, r, func(c *components) infoProvider {
		return s.checker(c).ThemeInfo
	})
}
