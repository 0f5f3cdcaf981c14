package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/codeagentswarm/swarm-backend/internal/changelog"
	"github.com/codeagentswarm/swarm-backend/internal/model"
	"github.com/go-chi/chi/v5"
)

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func (a *API) listChangelogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit <= 0 {
		limit = 10
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	changelogs, err := a.changelogs.List(r.Context(), limit, offset)
	if err != nil {
		a.internalError(w, r, "failed to list changelogs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"limit":      limit,
		"offset":     offset,
		"count":      len(changelogs),
		"changelogs": changelogs,
	})
}

func (a *API) getChangelog(w http.ResponseWriter, r *http.Request) {
	c, err := a.changelogs.Get(r.Context(), chi.URLParam(r, "version"))
	if err != nil {
		a.internalError(w, r, "failed to get changelog", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Changelog not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) changelogsBetween(w http.ResponseWriter, r *http.Request) {
	from, to := chi.URLParam(r, "from"), chi.URLParam(r, "to")
	changelogs, err := a.changelogs.Between(r.Context(), from, to)
	if errors.Is(err, changelog.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, "failed to get changelogs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fromVersion": from,
		"toVersion":   to,
		"count":       len(changelogs),
		"changelogs":  changelogs,
	})
}

func (a *API) combinedChangelog(w http.ResponseWriter, r *http.Request) {
	from, to := chi.URLParam(r, "from"), chi.URLParam(r, "to")
	text, found, err := a.changelogs.Combined(r.Context(), from, to)
	if errors.Is(err, changelog.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.internalError(w, r, "failed to combine changelogs", err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":       "No changelogs found between versions",
			"fromVersion": from,
			"toVersion":   to,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fromVersion": from,
		"toVersion":   to,
		"changelog":   text,
	})
}

func (a *API) saveChangelog(w http.ResponseWriter, r *http.Request) {
	var c model.Changelog
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := a.changelogs.Save(r.Context(), &c)
	switch {
	case errors.Is(err, changelog.ErrMissingField):
		writeError(w, http.StatusBadRequest, "Missing required fields: version, changelog")
		return
	case errors.Is(err, changelog.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.internalError(w, r, "failed to save changelog", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
