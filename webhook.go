package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// WebhookServer exposes the HTTP surface: health probes, the Telegram
// webhook endpoint, and an alert intake endpoint that forwards external
// notifications (trading alerts, automation flows) to the administrator.
type WebhookServer struct {
	bot   *Bot
	allow *AllowList

	telegramSecret string
	alertKeyHash   string
	alertJWTSecret []byte

	router *mux.Router
}

func NewWebhookServer(bot *Bot, allow *AllowList, telegramSecret, alertKeyHash, alertJWTSecret string) *WebhookServer {
	s := &WebhookServer{
		bot:            bot,
		allow:          allow,
		telegramSecret: telegramSecret,
		alertKeyHash:   alertKeyHash,
		alertJWTSecret: []byte(alertJWTSecret),
	}

	r := mux.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(RequestLogging)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ready", s.handleReady).Methods("GET")
	r.HandleFunc("/webhook/telegram", s.handleTelegram).Methods("POST")

	alerts := r.PathPrefix("/webhook/alerts").Subrouter()
	alerts.Use(s.AlertAuth)
	alerts.HandleFunc("", s.handleAlert).Methods("POST")

	s.router = r
	return s
}

func (s *WebhookServer) Handler() http.Handler { return s.router }

func (s *WebhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *WebhookServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.bot.store.(interface{ ping() bool }); ok && !p.ping() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// handleTelegram accepts webhook updates. The secret token header proves the
// request came from the Bot API.
func (s *WebhookServer) handleTelegram(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.telegramSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid secret token")
		return
	}
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid update body")
		return
	}
	// Acknowledge immediately; dispatch runs in its own goroutine like
	// the polling path. The request context is cancelled as soon as this
	// handler returns, so the dispatch must run on a detached context or
	// every outbound provider call dies with context.Canceled.
	go s.bot.HandleUpdate(context.WithoutCancel(r.Context()), u)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AlertAuth validates alert callers by API key (bcrypt hash comparison) or
// HS256 bearer token.
func (s *WebhookServer) AlertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && len(s.alertKeyHash) > 0 {
			if bcrypt.CompareHashAndPassword([]byte(s.alertKeyHash), []byte(apiKey)) == nil {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
			return
		}

		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") && len(s.alertJWTSecret) > 0 {
			raw := strings.TrimPrefix(auth, "Bearer ")
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return s.alertJWTSecret, nil
			})
			if err == nil && token.Valid {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
			return
		}

		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key or bearer token required")
	})
}

// handleAlert forwards the alert text to the administrator's chat.
func (s *WebhookServer) handleAlert(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Alert text is required")
		return
	}
	adminID, ok := s.allow.AdminID()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "NO_ADMIN", "No administrator configured")
		return
	}
	if err := s.bot.client.SendMessage(r.Context(), adminID, "Alert: "+in.Text); err != nil {
		log.Printf("[alerts] forward to admin %d: %v", adminID, err)
		writeError(w, http.StatusBadGateway, "DELIVERY_FAILED", "Could not deliver alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// RequestLogging middleware logs requests
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("[http] %s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
