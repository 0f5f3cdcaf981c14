package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/codeagentswarm/swarm-backend/internal/update"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (a *API) target(r *http.Request, platform, arch string) update.Target {
	return update.ResolveTarget(platform, arch, r.UserAgent(), update.Target{
		Platform: a.cfg.Update.DefaultPlatform,
		Arch:     a.cfg.Update.DefaultArch,
	})
}

// resolve answers the update question for a request, writing the error
// response itself when it returns ok == false
func (a *API) resolve(w http.ResponseWriter, r *http.Request, current string, t update.Target) (*model.UpdateDescriptor, bool) {
	if err := update.ValidateVersion(current); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if t.Platform == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return nil, false
	}

	d, err := a.resolver.Resolve(r.Context(), current, t.Platform, t.Arch)
	if err != nil {
		a.internalError(w, r, "update check failed", err)
		return nil, false
	}
	a.logger.Info("update check",
		zap.String("platform", t.Platform),
		zap.String("arch", t.Arch),
		zap.String("current", current),
		zap.Bool("update_available", d != nil),
	)
	return d, true
}

// checkUpdate serves GET /update/{platform}/{version}
func (a *API) checkUpdate(w http.ResponseWriter, r *http.Request) {
	t := a.target(r, chi.URLParam(r, "platform"), r.URL.Query().Get("arch"))
	d, ok := a.resolve(w, r, chi.URLParam(r, "version"), t)
	if !ok {
		return
	}
	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// updateManifest serves the same answer as checkUpdate in auto-updater YAML
func (a *API) updateManifest(w http.ResponseWriter, r *http.Request) {
	t := a.target(r, chi.URLParam(r, "platform"), r.URL.Query().Get("arch"))
	d, ok := a.resolve(w, r, chi.URLParam(r, "version"), t)
	if !ok {
		return
	}
	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	a.writeManifest(w, r, d)
}

// checkUpdateBody serves POST /update/check
func (a *API) checkUpdateBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentVersion string `json:"currentVersion"`
		Platform       string `json:"platform"`
		Arch           string `json:"arch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentVersion == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: currentVersion, platform")
		return
	}

	d, ok := a.resolve(w, r, req.CurrentVersion, a.target(r, req.Platform, req.Arch))
	if !ok {
		return
	}
	if d == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"updateAvailable": false,
			"currentVersion":  req.CurrentVersion,
		})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		UpdateAvailable bool `json:"updateAvailable"`
		*model.UpdateDescriptor
	}{true, d})
}

// updateFeed serves the latest release manifest for auto-updaters that poll
// a static feed, e.g. /update/feed/darwin/arm64/latest-mac.yml
func (a *API) updateFeed(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(chi.URLParam(r, "file"), ".yml") {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	t := a.target(r, chi.URLParam(r, "platform"), chi.URLParam(r, "arch"))

	d, err := a.resolver.Latest(r.Context(), t.Platform, t.Arch)
	if err != nil {
		a.internalError(w, r, "update feed failed", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "No release available")
		return
	}
	a.writeManifest(w, r, d)
}

func (a *API) writeManifest(w http.ResponseWriter, r *http.Request, d *model.UpdateDescriptor) {
	body, err := update.RenderManifest(d)
	if err != nil {
		a.internalError(w, r, "failed to render manifest", err)
		return
	}
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(body)
}
