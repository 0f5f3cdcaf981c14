package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/codeagentswarm/swarm-backend/internal/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{if .Error}}Authentication Failed{{else}}Authentication Successful{{end}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; background: #1a1a1a; color: white; }
.container { background: #2a2a2a; padding: 2rem; border-radius: 12px; max-width: 500px; text-align: center; }
h1 { color: #10b981; }
h1.failed { color: #ef4444; }
.avatar { width: 80px; height: 80px; border-radius: 50%; }
a.button { display: inline-block; background: #3b82f6; color: white; padding: 1rem 2rem; border-radius: 8px; text-decoration: none; margin-top: 1rem; }
.muted { color: #888; font-size: 0.9rem; }
</style>
</head>
<body>
<div class="container">
{{if .Error}}
<h1 class="failed">Authentication Failed</h1>
<p>There was an error during authentication. Please try again.</p>
<p class="muted">{{.Error}}</p>
{{else}}
<h1>Authentication Successful!</h1>
{{with .User}}
{{if .AvatarURL}}<img src="{{.AvatarURL}}" alt="Avatar" class="avatar">{{end}}
<p><strong>{{if .Name}}{{.Name}}{{else}}{{.Email}}{{end}}</strong></p>
<p class="muted">{{.Email}}</p>
{{end}}
<p class="muted" id="status">Opening CodeAgentSwarm...</p>
<a class="button" id="open" href="{{.DeepLink}}">Open CodeAgentSwarm Manually</a>
<script>
setTimeout(function () { window.location.href = document.getElementById('open').href; }, 1500);
setTimeout(function () { document.getElementById('status').textContent = 'Click the button below if the app did not open'; }, 3000);
</script>
{{end}}
</div>
</body>
</html>
`))

type callbackView struct {
	Error    string
	User     any
	DeepLink template.URL
}

func (a *API) renderCallback(w http.ResponseWriter, status int, view callbackView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, view); err != nil {
		a.logger.Error("failed to render callback page", zap.Error(err))
	}
}

// authError maps auth failures onto responses
func (a *API) authError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "Authentication service unavailable. Please check server configuration.")
	case errors.Is(err, auth.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "Invalid provider")
	case errors.Is(err, auth.ErrProviderDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "Token expired"})
	case errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": "Invalid token"})
	case errors.Is(err, auth.ErrInvalidRefresh):
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
	default:
		a.internalError(w, r, "auth request failed", err)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	target, err := a.auth.LoginURL(chi.URLParam(r, "provider"))
	if err != nil {
		a.authError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	if !a.auth.Enabled() {
		a.authError(w, r, auth.ErrDisabled)
		return
	}
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		a.renderCallback(w, http.StatusBadRequest, callbackView{Error: e})
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "No authorization code provided")
		return
	}

	result, err := a.auth.Callback(r.Context(), provider, code, q.Get("state"), auth.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUnknownProvider), errors.Is(err, auth.ErrInvalidState):
			status = http.StatusBadRequest
		case errors.Is(err, auth.ErrProviderDisabled):
			status = http.StatusServiceUnavailable
		}
		a.logger.Error("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		a.renderCallback(w, status, callbackView{Error: err.Error()})
		return
	}

	a.renderCallback(w, http.StatusOK, callbackView{
		User:     result.User,
		DeepLink: template.URL(result.DeepLink(a.cfg.Auth.DeepLinkScheme)),
	})
}

func (a *API) validate(w http.ResponseWriter, r *http.Request) {
	if !a.auth.Enabled() {
		a.authError(w, r, auth.ErrDisabled)
		return
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}
	claims, err := a.auth.Validate(r.Context(), token)
	if err != nil {
		a.authError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": claims})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	if !a.auth.Enabled() {
		a.authError(w, r, auth.ErrDisabled)
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "No refresh token provided")
		return
	}
	access, user, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.authError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": access, "user": user})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if !a.auth.Enabled() {
		a.authError(w, r, auth.ErrDisabled)
		return
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "No token provided")
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		a.authError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
