package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"arshare/api/internal/search"
)

const deviceCookie = "ar_device"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" && s.service.metrics != nil {
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	switch r.URL.Path {
	case "/api/preview":
		if r.Method == http.MethodGet {
			s.handlePreview(w, r)
			return
		}
	case "/api/preview/access":
		switch r.Method {
		case http.MethodPost:
			s.handleSubmitAccess(w, r)
			return
		case http.MethodDelete:
			s.handleClearAccess(w, r)
			return
		}
	case "/api/preview/qr":
		if r.Method == http.MethodGet {
			s.handlePreviewQR(w, r)
			return
		}
	case "/api/preview/feedback":
		if r.Method == http.MethodPost {
			s.handleFeedback(w, r)
			return
		}
	case "/api/projects":
		if !s.requireAdmin(w, r) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleListProjects(w, r)
			return
		case http.MethodPost:
			s.handleCreateProject(w, r)
			return
		case http.MethodDelete:
			s.handleDeleteProject(w, r)
			return
		}
	case "/api/projects/feedback":
		if !s.requireAdmin(w, r) {
			return
		}
		if r.Method == http.MethodGet {
			s.handleListFeedback(w, r)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"grants":   map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingGrants(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["grants"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) previewRequest(w http.ResponseWriter, r *http.Request, shareLinkID, accessToken string) (PreviewRequest, bool) {
	deviceID, err := s.device(w, r)
	if err != nil {
		s.fail(w, r, err)
		return PreviewRequest{}, false
	}
	return PreviewRequest{
		DeviceID:    deviceID,
		ShareLinkID: shareLinkID,
		AccessToken: accessToken,
		UserAgent:   r.UserAgent(),
	}, true
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, ok := s.previewRequest(w, r, query.Get("id"), query.Get("access"))
	if !ok {
		return
	}
	preview, err := s.service.OpenPreview(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleSubmitAccess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req, ok := s.previewRequest(w, r, body.ID, "")
	if !ok {
		return
	}
	preview, err := s.service.SubmitAccessCode(r.Context(), req, body.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleClearAccess(w http.ResponseWriter, r *http.Request) {
	deviceID, err := s.device(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.ClearGrant(r.Context(), deviceID, r.URL.Query().Get("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePreviewQR(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, ok := s.previewRequest(w, r, query.Get("id"), query.Get("access"))
	if !ok {
		return
	}
	image, err := s.service.QRImage(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     string `json:"id"`
		Access string `json:"access"`
		FeedbackInput
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req, ok := s.previewRequest(w, r, body.ID, body.Access)
	if !ok {
		return
	}
	feedback, err := s.service.SubmitFeedback(r.Context(), req, body.FeedbackInput)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           feedback.ID,
		"shareLinkId":  feedback.ShareLinkID,
		"feedbackType": feedback.FeedbackType,
		"comment":      feedback.Comment,
		"clientName":   feedback.ClientName,
		"submittedAt":  feedback.SubmittedAt,
	})
}

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body CreateProjectInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateProject(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	writeJSON(w, http.StatusOK, s.service.ListProjects(r.Context(), search.Query{Text: query.Get("q"), Limit: limit, Offset: offset}))
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	shareLinkID := r.URL.Query().Get("id")
	if err := s.service.DeleteProject(r.Context(), shareLinkID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "shareLinkId": strings.TrimSpace(shareLinkID)})
}

func (s *HTTPServer) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	list, err := s.service.ListFeedback(r.Context(), query.Get("id"), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if err := s.service.CheckAdmin(bearerToken(r)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return false
	}
	return true
}

// device returns the caller's device id, minting and setting a signed cookie
// on first contact or when the cookie no longer verifies.
func (s *HTTPServer) device(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(deviceCookie); err == nil && cookie.Value != "" {
		if deviceID, err := s.service.DeviceFromToken(cookie.Value); err == nil {
			return deviceID, nil
		}
	}
	deviceID, token, err := s.service.NewDevice()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     deviceCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(deviceTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return deviceID, nil
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), writer.status, elapsed)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request")
	})
}

var knownRoutes = map[string]bool{
	"/api/health":            true,
	"/api/ready":             true,
	"/api/preview":           true,
	"/api/preview/access":    true,
	"/api/preview/qr":        true,
	"/api/preview/feedback":  true,
	"/api/projects":          true,
	"/api/projects/feedback": true,
	"/metrics":               true,
}

// routeLabel keeps unknown paths out of metric labels.
func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	return uuid.NewString()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
