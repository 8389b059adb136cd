package server

import (
	"context"
	"fmt"

	"github.com/nanato/wp-github-updates/internal/download"
	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/install"
	"github.com/nanato/wp-github-updates/internal/update"
)

// components are built per request so that a token saved in the settings applies immediately.
type components struct {
	github     *githubapi.Client
	resolver   *githubapi.Resolver
	downloader *download.Downloader
}

func (s *Server) newComponents(ctx context.Context) (*components, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load settings: %w", err)
	}
	return s.newComponentsWithToken(s.config.EffectiveToken(settings.GitHubToken))
}

func (s *Server) newComponentsWithToken(token string) (*components, error) {
	gh, err := githubapi.New(s.config.GitHubConfig(token, s.observer))
	if err != nil {
		return nil, err
	}
	return &components{
		github:     gh,
		resolver:   githubapi.NewResolver(gh),
		downloader: download.New(s.config.DownloadConfig(token, s.mirror, s.observer)),
	}, nil
}

func (s *Server) installer(c *components) *install.Installer {
	return install.New(install.Config{
		Paths:     s.config.Paths(),
		GitHub:    c.github,
		Resolver:  c.resolver,
		Fetcher:   c.downloader,
		Activator: s.activator,
		Observer:  s.observer,
	})
}

func (s *Server) checker(c *components) *update.Checker {
	return update.NewChecker(update.Config{
		Paths:    s.config.Paths(),
		Registry: s.store,
		Releases: c.resolver,
		Observer: s.observer,
	})
}

func (s *Server) interceptor(c *components) *update.Interceptor {
	return update.NewInterceptor(c.github, c.downloader, s.observer)
}
