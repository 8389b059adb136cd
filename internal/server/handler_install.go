package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/nanato/wp-github-updates/internal/install"
	"github.com/nanato/wp-github-updates/internal/metrics"
	"github.com/nanato/wp-github-updates/pkg/updates"
)

func (s *Server) installPackage(w http.ResponseWriter, r *http.Request) {
	var req updates.InstallRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Owner == "" || req.Name == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("repository owner and name are required"))
		return
	}

	err := s.installSemaphore.Acquire(r.Context(), 1)
	if err != nil {
		s.writeJSONError(w, r, http.StatusTooManyRequests, err, "could not acquire semaphore")
		return
	}
	defer s.installSemaphore.Release(1)

	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	installer := s.installer(c)
	target, err := installer.TargetDir(&req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reqLogger := s.requestLogger(r).WithField("directory", target)
	reqLogger.Infof("installing %s %s/%s", req.Type, req.Owner, req.Name)

	res, err := installer.Install(r.Context(), &req)
	metrics.RecordInstall(r.Context(), string(req.Type), err)
	if err != nil {
		if res == nil && !errors.Is(err, install.ErrDirectoryNotEmpty) {
			if cleanupErr := install.CleanupEmptyDirectory(target); cleanupErr != nil {
				reqLogger.WithError(cleanupErr).Warn("could not remove empty directory")
			}
		}
		if errors.Is(err, install.ErrActivationFailed) {
			s.writeError(w, r, err, fmt.Sprintf("%s installed but could not be activated: %s", packageLabel(req.Type),
				strings.TrimPrefix(err.Error(), install.ErrActivationFailed.Error()+": ")))
			return
		}
		s.writeError(w, r, err)
		return
	}

	if req.AddToUpdater {
		reg := &updates.Registration{Type: req.Type, Owner: req.Owner, Name: req.Name}
		if req.Type == updates.TypePlugin {
			reg.File = res.File
		} else {
			reg.Slug = res.Slug
		}
		if err := s.store.AddRepository(r.Context(), reg); err != nil {
			s.writeError(w, r, err, "package installed but could not be added to the updater")
			return
		}
		s.invalidateInfo()
	}

	reqLogger.Info(res.Message)
	s.writeJSON(w, res)
}

func packageLabel(t updates.PackageType) string {
	if t == updates.TypeTheme {
		return "Theme"
	}
	return "Plugin"
}

// preDownload downloads GitHub hosted packages on behalf of the WordPress upgrader.
func (s *Server) preDownload(w http.ResponseWriter, r *http.Request) {
	var req updates.PackageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSONError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		s.writeJSONError(w, r, http.StatusBadRequest, fmt.Errorf("package url is missing"))
		return
	}

	c, err := s.newComponents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	path, handled, err := s.interceptor(c).PreDownload(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !handled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", fmt.Sprint(fi.Size()))
	}
	w.Header().Set("Content-Type", "application/zip")
	if _, err := io.Copy(w, f); err != nil {
		s.requestLogger(r).WithError(err).Warn("could not stream package")
	}
}
