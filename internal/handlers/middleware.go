package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
)

const (
	visitorCookieName = "roma_visitor"
	visitorHeaderName = "X-Visitor-ID"
	visitorCookieTTL  = 365 * 24 * time.Hour
)

// VisitorMiddleware assigns every caller an anonymous visitor id, read from the X-Visitor-ID
// header or the roma_visitor cookie and minted when neither carries a valid UUID.
func VisitorMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := parseVisitorID(r.Header.Get(visitorHeaderName))
			if id == "" {
				if c, err := r.Cookie(visitorCookieName); err == nil {
					id = parseVisitorID(c.Value)
				}
				if id == "" {
					id = uuid.NewString()
					http.SetCookie(w, &http.Cookie{
						Name:     visitorCookieName,
						Value:    id,
						Path:     "/",
						HttpOnly: true,
						Secure:   secure,
						SameSite: http.SameSiteLaxMode,
						MaxAge:   int(visitorCookieTTL / time.Second),
					})
				}
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithVisitorID(r.Context(), id)))
		})
	}
}

func parseVisitorID(raw string) string {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return parsed.String()
}

// CORSMiddleware allows browser calls from the listed origins. "*" allows any origin without
// credentials.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			allowAll = true
		default:
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, ok := allowed[strings.ToLower(origin)]
			if !ok && !allowAll {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			} else {
				h.Set("Access-Control-Allow-Origin", "*")
			}
			h.Set("Access-Control-Expose-Headers", "X-Request-Id, X-Idempotent-Replay")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key, X-Visitor-ID")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
