package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

type peerKey struct{}

// RememberPeer keeps the socket address of the caller before RealIP
// rewrites RemoteAddr from forwarding headers
func RememberPeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func peerAddr(r *http.Request) string {
	if addr, ok := r.Context().Value(peerKey{}).(string); ok {
		return addr
	}
	return r.RemoteAddr
}

// clientIP returns the caller address without the port
func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// LocalOnly is a middleware that restricts access to localhost only
func LocalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(peerAddr(r))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		if ip != "127.0.0.1" && ip != "::1" && ip != "localhost" {
			writeError(w, http.StatusForbidden, "Access denied")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// installerExts are the release artifacts served from the public bucket
var installerExts = map[string]string{
	".dmg":      "application/x-apple-diskimage",
	".zip":      "application/zip",
	".exe":      "application/vnd.microsoft.portable-executable",
	".msi":      "application/x-msi",
	".appimage": "application/octet-stream",
	".deb":      "application/vnd.debian.binary-package",
	".rpm":      "application/x-rpm",
	".blockmap": "application/octet-stream",
	".yml":      "text/yaml; charset=utf-8",
}

// SecureFileServer is a middleware that adds security headers, prevents
// directory listing and only lets installer artifacts through
func SecureFileServer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		if strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}

		contentType, ok := installerExts[strings.ToLower(path.Ext(r.URL.Path))]
		if !ok {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+path.Base(r.URL.Path)+"\"")

		next.ServeHTTP(w, r)
	})
}

// RateLimiter implements rate limiting using token bucket algorithm
type RateLimiter struct {
	ips    map[string]*rate.Limiter
	mu     *sync.Mutex
	rps    float64
	burst  int
	ticker *time.Ticker
	done   chan struct{}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limiter := &RateLimiter{
		ips:    make(map[string]*rate.Limiter),
		mu:     &sync.Mutex{},
		rps:    rps,
		burst:  burst,
		ticker: time.NewTicker(1 * time.Hour),
		done:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// cleanup drops idle limiters periodically
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.ticker.C:
			rl.mu.Lock()
			for ip := range rl.ips {
				delete(rl.ips, ip)
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// getLimiter returns a rate limiter for the given IP
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
		rl.ips[ip] = limiter
	}

	return limiter
}

// RateLimit middleware limits requests per IP
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.getLimiter(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops the cleanup routine
func (rl *RateLimiter) Close() {
	rl.ticker.Stop()
	close(rl.done)
}

// Cors allows the configured web origins plus the Electron renderer, which
// sends file:// or null origins
func Cors(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return origin == "" || origin == "null" || strings.HasPrefix(origin, "file://") || origins[origin]
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-App-Signature", "X-Timestamp", "X-App-Version", "X-Platform"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// AppSignature verifies that a request body was signed by the desktop app:
// X-App-Signature is the hex HMAC-SHA256 of "timestamp:appVersion:body"
// and X-Timestamp (unix ms) must be within maxAge of now.
func AppSignature(secret string, maxAge time.Duration, maxBody int64, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, "Error reporting is not configured")
				return
			}
			signature := r.Header.Get("X-App-Signature")
			timestamp := r.Header.Get("X-Timestamp")
			appVersion := r.Header.Get("X-App-Version")
			if signature == "" || timestamp == "" || appVersion == "" {
				writeError(w, http.StatusUnauthorized, "Missing authentication headers")
				return
			}

			ms, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid timestamp")
				return
			}
			age := now().Sub(time.UnixMilli(ms))
			if age > maxAge || age < -maxAge {
				writeError(w, http.StatusUnauthorized, "Request timestamp too old")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(timestamp + ":" + appVersion + ":"))
			mac.Write(body)
			expected := mac.Sum(nil)

			got, err := hex.DecodeString(signature)
			if err != nil || !hmac.Equal(got, expected) {
				writeError(w, http.StatusUnauthorized, "Invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
