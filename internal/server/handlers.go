package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/update"
	"github.com/nanato/wp-github-updates/pkg/updates"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	hintAccessDenied = ` Your token may be invalid or missing required permissions. Please make sure your token has the "repo" scope.`
	hintNotFound     = " The resource could not be found. Please check the repository owner and name."

	// HeaderGitHubToken tests a token on the connection endpoint without saving it.
	HeaderGitHubToken = "X-GitHub-Token"
)

func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	var (
		c   *components
		err error
	)
	if token := r.Header.Get(HeaderGitHubToken); token != "" {
		c, err = s.newComponentsWithToken(token)
	} else {
		c, err = s.newComponents(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := c.github.AuthenticatedUser(r.Context())
	if err != nil {
		msg := err.Error()
		switch {
		case githubapi.IsAccessDenied(err):
			msg += hintAccessDenied
		case githubapi.IsNotFound(err):
			msg += hintNotFound
		}
		s.writeError(w, r, err, msg)
		return
	}
	if user.Login == "" {
		s.writeJSONError(w, r, http.StatusBadGateway, fmt.Errorf("unexpected response from GitHub API"))
		return
	}

	rl := c.github.RateLimit()
	s.writeJSON(w, &updates.ConnectionStatus{
		Message: fmt.Sprintf("Connection successful! Authenticated as %s.", user.Login),
		Login:   user.Login,
		RateLimit: updates.RateLimit{
			Limit:     rl.Limit,
			Remaining: rl.Remaining,
			Reset:     rl.Reset,
			Resource:  rl.Resource,
		},
	})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err, "could not load settings")
		return
	}
	s.writeJSON(w, &updates.Settings{
		GitHubToken: maskToken(settings.GitHubToken),
		LogLevel:    settings.LogLevel,
	})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req updates.Settings
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	current, err := s.store.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err, "could not load settings")
		return
	}

	// a masked token is echoed back by clients that did not change it
	if req.GitHubToken != "" && req.GitHubToken == maskToken(current.GitHubToken) {
		req.GitHubToken = current.GitHubToken
	}
	if req.GitHubToken != "" && !githubapi.ValidTokenFormat(req.GitHubToken) {
		s.requestLogger(r).Warn("the GitHub token format appears to be invalid")
	}
	if req.LogLevel == "" {
		req.LogLevel = current.LogLevel
	}
	level, err := logrus.ParseLevel(req.LogLevel)
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("invalid log level %q", req.LogLevel))
		return
	}

	if err := s.store.SaveSettings(r.Context(), &req); err != nil {
		s.writeError(w, r, err, "could not save settings")
		return
	}
	if s.hook != nil {
		s.hook.SetLevel(level)
	}
	s.invalidateInfo()
	s.writeJSON(w, &updates.Settings{
		GitHubToken: maskToken(req.GitHubToken),
		LogLevel:    req.LogLevel,
	})
}

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.Repositories(r.Context())
	if err != nil {
		s.writeError(w, r, err, "could not load repositories")
		return
	}
	s.writeJSON(w, repos)
}

func (s *Server) addRepository(w http.ResponseWriter, r *http.Request) {
	var reg updates.Registration
	if err := decodeJSON(r, &reg); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.store.AddRepository(r.Context(), &reg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Infof("registered %s %s", reg.Type, reg.FullName())
	s.invalidateInfo()
	s.setContentTypeJSON(w)
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) removeRepository(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("invalid repository index"))
		return
	}
	removed, err := s.store.RemoveRepository(r.Context(), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Infof("removed %s %s", removed.Type, removed.FullName())
	s.invalidateInfo()
	s.writeJSON(w, removed)
}

func (s *Server) searchRepositories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("search query is missing"))
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	perPage, err := queryInt(r, "per_page", 30)
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	perPage = min(perPage, 100)

	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := c.github.SearchRepositories(r.Context(), query, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, &updates.SearchResult{
		TotalCount: res.Total,
		Repositories: lo.Map(res.Repositories, func(repo *githubapi.Repository, _ int) *updates.RepositorySummary {
			return &updates.RepositorySummary{
				FullName:    repo.FullName,
				Name:        repo.Name,
				Owner:       repo.Owner,
				Description: repo.Description,
				Stars:       repo.Stars,
				HTMLURL:     repo.HTMLURL,
				Private:     repo.Private,
			}
		}),
	})
}

func (s *Server) lookupRepository(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "repo")

	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	repo, err := c.github.Repository(r.Context(), owner, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	release, err := c.resolver.LatestRelease(r.Context(), owner, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	license := repo.License
	if license == "" {
		license = "Unknown"
	}
	s.writeJSON(w, &updates.Lookup{
		Name:         repo.Name,
		Description:  repo.Description,
		Version:      update.NormalizeVersion(release.TagName),
		Author:       repo.Owner,
		Stars:        repo.Stars,
		UpdatedAt:    repo.UpdatedAt.Format("2006-01-02"),
		ReleaseNotes: release.Body,
		DownloadURL:  release.ZipballURL,
		HasWiki:      repo.HasWiki,
		License:      license,
	})
}

func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	releases, err := c.github.ListReleases(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, lo.Map(releases, func(release *githubapi.Release, _ int) updates.Release {
		return updates.Release{
			Version:     update.NormalizeVersion(release.TagName),
			Name:        release.Name,
			PublishedAt: release.PublishedAt.Format("2006-01-02"),
			HTMLURL:     release.HTMLURL,
			DownloadURL: release.ZipballURL,
		}
	}))
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	logs, err := s.store.Logs(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, "could not load logs")
		return
	}
	s.writeJSON(w, logs)
}

func (s *Server) clearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearLogs(r.Context()); err != nil {
		s.writeError(w, r, err, "could not clear logs")
		return
	}
	s.writeJSON(w, map[string]bool{"ok": true})
}
