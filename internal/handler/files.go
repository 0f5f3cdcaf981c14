package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/codeagentswarm/swarm-backend/internal/blob"
	"github.com/codeagentswarm/swarm-backend/pkg/zip"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// signedBlob serves a private object to holders of a signed link
func (a *API) signedBlob(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	if err := a.blobs.VerifyToken(r.URL.Query().Get("token"), bucket, key); err != nil {
		writeError(w, http.StatusForbidden, "Invalid or expired link")
		return
	}

	rc, err := a.blobs.Open(r.Context(), bucket, key)
	switch {
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrInvalidKey):
		writeError(w, http.StatusNotFound, "Not Found")
		return
	case err != nil:
		a.internalError(w, r, "failed to open blob", err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(key)+"\"")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		a.logger.Warn("blob download interrupted", zap.String("key", key), zap.Error(err))
	}
}

// ticketBundle zips a support ticket's record and log for offline triage
func (a *API) ticketBundle(w http.ResponseWriter, r *http.Request) {
	ticket := chi.URLParam(r, "ticketId")
	entry, err := a.reports.GetLog(r.Context(), ticket)
	if err != nil {
		a.internalError(w, r, "failed to get log", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}

	record, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		a.internalError(w, r, "failed to encode ticket", err)
		return
	}

	// open the log up front so a missing blob is still a clean error response
	logFile, err := a.reports.OpenLog(r.Context(), entry)
	if err != nil {
		a.internalError(w, r, "failed to open ticket log", err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+ticket+".zip\"")
	err = zip.Write(w, []zip.Entry{
		zip.Bytes("ticket.json", entry.CreatedAt, record),
		{
			Name:     path.Base(entry.LogPath),
			Modified: entry.CreatedAt,
			Open:     func() (io.ReadCloser, error) { return logFile, nil },
		},
	})
	if err != nil {
		a.logger.Error("failed to write ticket bundle", zap.String("ticket", ticket), zap.Error(err))
	}
}
