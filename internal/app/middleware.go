package app

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"kjtimes/internal/article"
	"kjtimes/internal/logger"
)

// Device types passed to handlers.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
)

// DeviceHeader carries the detected device type on the request.
const DeviceHeader = "X-Device-Type"

const (
	specialIssueLockCookie = "kj_special_issue_lock"
	specialIssueLockTTL    = 12 * time.Hour
)

var sharePath = regexp.MustCompile(`^/share/([^/]+)$`)

var staticAsset = regexp.MustCompile(`(?i)\.(svg|png|jpe?g|gif|webp|ico)$`)

// previewAllowed are the path prefixes reachable while preview mode is on.
var previewAllowed = []string{
	"/special-edition",
	"/article",
	"/share",
	"/admin",
	"/login",
	"/signup",
	"/api",
	"/static",
	"/favicon.ico",
	"/brand",
}

type ctxKey int

const (
	deviceKey ctxKey = iota
	routeKey
)

// detectDevice treats phones and tablets as mobile, everything else as
// desktop.
func detectDevice(userAgent string) string {
	ua := useragent.Parse(userAgent)
	if ua.Mobile || ua.Tablet {
		return DeviceMobile
	}
	return DeviceDesktop
}

// DeviceFrom returns the device type stored by the device middleware.
func DeviceFrom(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey).(string); ok {
		return d
	}
	return DeviceDesktop
}

func (s *Server) withDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device := detectDevice(r.UserAgent())
		r = r.WithContext(context.WithValue(r.Context(), deviceKey, device))
		r.Header.Set(DeviceHeader, device)
		next.ServeHTTP(w, r)
	})
}

// bypassGate lists requests the preview and lock redirects never touch.
func bypassGate(path string) bool {
	switch {
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return true
	case strings.HasPrefix(path, "/static/"), path == "/favicon.ico":
		return true
	case path == "/healthz" || path == "/metrics":
		return true
	}
	return staticAsset.MatchString(path)
}

func isPreviewAllowed(path string) bool {
	for _, prefix := range previewAllowed {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// gate applies preview mode and the special-issue lock. Opening a share link
// pins the reader to that article for specialIssueLockTTL: every other page
// except admin and login redirects back to it.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if bypassGate(path) {
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.PreviewMode && (path == "/" || !isPreviewAllowed(path)) {
			http.Redirect(w, r, "/"+article.SpecialEditionSlug, http.StatusTemporaryRedirect)
			return
		}

		if m := sharePath.FindStringSubmatch(path); m != nil {
			http.SetCookie(w, &http.Cookie{
				Name:     specialIssueLockCookie,
				Value:    url.PathEscape(m[1]),
				Path:     "/",
				MaxAge:   int(specialIssueLockTTL / time.Second),
				HttpOnly: true,
				Secure:   isHTTPS(r),
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r)
			return
		}

		if c, err := r.Cookie(specialIssueLockCookie); err == nil && c.Value != "" && !lockExempt(path) {
			slug, err := url.PathUnescape(c.Value)
			if err == nil && slug != "" {
				http.Redirect(w, r, "/share/"+url.PathEscape(slug), http.StatusTemporaryRedirect)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func lockExempt(path string) bool {
	return strings.HasPrefix(path, "/admin") || path == "/login" || path == "/signup"
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(firstHeaderValue(r.Header.Get("X-Forwarded-Proto")), "https")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routeInfo is filled in by the mux wrapper so the logger can label metrics
// with the matched pattern rather than the raw path.
type routeInfo struct {
	pattern string
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &routeInfo{}
		r = r.WithContext(context.WithValue(r.Context(), routeKey, info))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := info.pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, rec.status, elapsed)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", elapsed),
			logger.String("device", r.Header.Get(DeviceHeader)),
		}
		if rec.status >= http.StatusInternalServerError {
			s.log.Error("HTTP request failed", fields...)
			return
		}
		s.log.Debug("HTTP request", fields...)
	})
}

// recordRoute wraps the mux and copies the matched pattern into routeInfo.
func recordRoute(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if info, ok := r.Context().Value(routeKey).(*routeInfo); ok {
			info.pattern = pattern
		}
		mux.ServeHTTP(w, r)
	})
}
