package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/codeagentswarm/swarm-backend/internal/report"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (a *API) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Reports.MaxUploadBytes)
	err := r.ParseMultipartForm(a.cfg.Reports.MaxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > a.cfg.Reports.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return false
	}
	return true
}

func clientFromForm(r *http.Request) report.Client {
	return report.Client{
		UserID:     r.FormValue("userId"),
		AppVersion: r.FormValue("appVersion"),
		Platform:   r.FormValue("platform"),
		Arch:       r.FormValue("arch"),
	}
}

// metadataFromForm decodes the JSON metadata field; a missing field is empty
func metadataFromForm(r *http.Request) (map[string]any, error) {
	raw := r.FormValue("metadata")
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// submitLog accepts a log as a logFile upload or a logContent field
func (a *API) submitLog(w http.ResponseWriter, r *http.Request) {
	if !a.parseUpload(w, r) {
		return
	}
	metadata, err := metadataFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metadata")
		return
	}

	var content []byte
	if f, _, err := r.FormFile("logFile"); err == nil {
		content, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid log file")
			return
		}
	} else {
		content = []byte(r.FormValue("logContent"))
	}

	receipt, err := a.reports.SaveLog(r.Context(), report.LogSubmission{
		Client:   clientFromForm(r),
		Content:  content,
		Metadata: metadata,
	})
	if errors.Is(err, report.ErrEmptyLog) {
		writeError(w, http.StatusBadRequest, "No log content provided")
		return
	}
	if err != nil {
		a.internalError(w, r, "failed to save log", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) getLogTicket(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) submitCrashReport(w http.ResponseWriter, r *http.Request) {
	if !a.parseUpload(w, r) {
		return
	}
	metadata, err := metadataFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid metadata")
		return
	}

	sub := report.CrashSubmission{
		Client:       clientFromForm(r),
		ErrorMessage: r.FormValue("errorMessage"),
		StackTrace:   r.FormValue("stackTrace"),
		Metadata:     metadata,
	}
	if f, _, err := r.FormFile("crashDump"); err == nil {
		defer f.Close()
		sub.CrashDump = f
	}

	receipt, err := a.reports.SaveCrashReport(r.Context(), sub)
	if err != nil {
		a.internalError(w, r, "failed to save crash report", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// errorQuota caps error reports per client in a window shared by every
// instance using the same database
func (a *API) errorQuota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := a.store.Hit(r.Context(), "errors:"+clientIP(r), a.cfg.Reports.ErrorWindow)
		if err != nil {
			a.logger.Warn("error report quota unavailable", zap.Error(err))
		} else if count > a.cfg.Reports.ErrorMax {
			writeError(w, http.StatusTooManyRequests, "Too many error reports. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) submitErrorReport(w http.ResponseWriter, r *http.Request) {
	var sub report.ErrorSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sub.AppVersion = r.Header.Get("X-App-Version")
	sub.Platform = r.Header.Get("X-Platform")
	if sub.Platform == "" {
		sub.Platform = "unknown"
	}

	_, err := a.reports.SaveErrorReport(r.Context(), sub)
	if errors.Is(err, report.ErrMissingError) {
		writeError(w, http.StatusBadRequest, "Error data is required")
		return
	}
	if err != nil {
		a.logger.Error("failed to save error report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to process error report",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Error report received",
	})
}

func (a *API) errorsHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"signingRequired": true,
		"rateLimit": map[string]any{
			"window":      a.cfg.Reports.ErrorWindow.Milliseconds(),
			"maxRequests": a.cfg.Reports.ErrorMax,
		},
	})
}
