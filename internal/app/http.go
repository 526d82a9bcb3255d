package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"concord/api/internal/search"
	"concord/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
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
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/votes" {
		s.handleSubmitVote(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}

	switch parts[1] {
	case "paragraphs":
		s.handleParagraphs(w, r, parts[2:])
	case "suggestions":
		s.handleSuggestions(w, r, parts[2:])
	case "evidence":
		s.handleEvidence(w, r, parts[2:])
	case "queue":
		s.handleQueue(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleParagraphs(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method == http.MethodPost && len(rest) == 0 {
		var body CreateParagraphInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateParagraph(r.Context(), body)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, paragraphPayload(item))
		return
	}

	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	paragraphID := rest[0]

	if r.Method == http.MethodGet && len(rest) == 1 {
		item, err := s.service.GetParagraph(r.Context(), paragraphID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, paragraphPayload(item))
		return
	}

	if len(rest) != 2 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPut && rest[1] == "settings":
		admin, ok := s.requireAdmin(w, r)
		if !ok {
			return
		}
		var body struct {
			Enabled         bool    `json:"enabled"`
			Mode            string  `json:"mode"`
			ReviewThreshold float64 `json:"reviewThreshold"`
			AllowAdminEdit  bool    `json:"allowAdminEdit"`
			MaxRecent       int     `json:"maxRecentVersions"`
			MaxTotal        int     `json:"maxTotalVersions"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.UpdateParagraphSettings(r.Context(), paragraphID, store.VersionSettings{
			Enabled:         body.Enabled,
			Mode:            body.Mode,
			ReviewThreshold: body.ReviewThreshold,
			AllowAdminEdit:  body.AllowAdminEdit,
			MaxRecent:       body.MaxRecent,
			MaxTotal:        body.MaxTotal,
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		log.Printf("app: version settings for paragraph %s updated by %s", paragraphID, admin)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodGet && rest[1] == "history":
		entries, err := s.service.ParagraphHistory(r.Context(), paragraphID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			payload = append(payload, versionPayload(entry))
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": payload})

	case r.Method == http.MethodGet && rest[1] == "queue":
		items, err := s.service.ListQueue(r.Context(), paragraphID, r.URL.Query().Get("sort"))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payload = append(payload, queueItemPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": payload})

	case r.Method == http.MethodGet && rest[1] == "suggestions":
		items, err := s.service.ListSuggestions(r.Context(), paragraphID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(items))
		for _, item := range items {
			payload = append(payload, suggestionPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": payload})

	case r.Method == http.MethodPost && rest[1] == "suggestions":
		var body CreateSuggestionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.ParagraphID = paragraphID
		item, err := s.service.CreateSuggestion(r.Context(), body)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, suggestionPayload(item))

	case r.Method == http.MethodPost && rest[1] == "batches":
		var body BatchInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.ParagraphID = paragraphID
		result, err := s.service.RequestBatch(r.Context(), body)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(result.Suggestions))
		for _, item := range result.Suggestions {
			payload = append(payload, suggestionPayload(item))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"suggestions": payload,
			"hasMore":     result.HasMore,
			"stats":       result.Stats,
		})

	case r.Method == http.MethodPost && rest[1] == "policy":
		result, err := s.service.RunAutoPolicy(r.Context(), paragraphID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if result == nil {
			writeJSON(w, http.StatusOK, map[string]any{"applied": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"applied":    true,
			"newVersion": result.NewVersion,
			"text":       result.FinalText,
		})

	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 2 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	statementID := rest[0]

	switch {
	case r.Method == http.MethodGet && rest[1] == "evidence":
		posts, err := s.service.ListEvidence(r.Context(), statementID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(posts))
		for _, post := range posts {
			payload = append(payload, evidencePayload(post))
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": payload})

	case r.Method == http.MethodPost && rest[1] == "evidence":
		var body CreateEvidenceInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.StatementID = statementID
		post, err := s.service.CreateEvidencePost(r.Context(), body)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, evidencePayload(post))

	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleEvidence(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost || len(rest) != 2 || rest[1] != "votes" {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	var body struct {
		Helpful bool `json:"helpful"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.VoteEvidencePost(r.Context(), rest[0], body.Helpful)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evidencePayload(post))
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodPost || len(rest) != 2 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}
	queueID := rest[0]
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	switch rest[1] {
	case "approve":
		var body struct {
			EditedText *string `json:"editedText"`
			Notes      string  `json:"notes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ApproveQueueItem(r.Context(), ApproveInput{
			QueueID:    queueID,
			AdminText:  body.EditedText,
			AdminNotes: body.Notes,
			AdminName:  admin,
		})
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"paragraphId":  result.ParagraphID,
			"suggestionId": result.SuggestionID,
			"newVersion":   result.NewVersion,
			"text":         result.FinalText,
			"consensus":    result.Consensus,
		})

	case "reject":
		var body struct {
			Notes string `json:"notes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.RejectQueueItem(r.Context(), queueID, body.Notes, admin)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, queueItemPayload(item))

	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

func (s *HTTPServer) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var body VoteInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	outcome, err := s.service.SubmitVote(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestion":  suggestionPayload(outcome.Suggestion),
		"consensus":   outcome.Consensus,
		"queueAction": outcome.QueueAction,
		"autoApplied": outcome.AutoApplied,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	response := s.service.SearchSuggestions(search.Query{
		Text:        query.Get("q"),
		ParagraphID: query.Get("paragraphId"),
		Limit:       limit,
	})
	writeJSON(w, http.StatusOK, response)
}

// requireAdmin reads the acting admin's name from the request header.
// The platform in front of this API authenticates admins; the header
// carries the identity through.
func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	admin := strings.TrimSpace(r.Header.Get("X-Concord-Admin"))
	if admin == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Admin identity required", nil)
		return "", false
	}
	return admin, true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func paragraphPayload(item store.Paragraph) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"documentId": item.DocumentID,
		"text":       item.Text,
		"version":    item.Version,
		"settings": map[string]any{
			"enabled":           item.Settings.Enabled,
			"mode":              item.Settings.Mode,
			"reviewThreshold":   item.Settings.ReviewThreshold,
			"allowAdminEdit":    item.Settings.AllowAdminEdit,
			"maxRecentVersions": item.Settings.MaxRecent,
			"maxTotalVersions":  item.Settings.MaxTotal,
		},
		"updatedBy": item.UpdatedBy,
		"updatedAt": item.UpdatedAt,
	}
}

func suggestionPayload(item store.Suggestion) map[string]any {
	return map[string]any{
		"id":              item.ID,
		"paragraphId":     item.ParagraphID,
		"text":            item.Text,
		"author":          item.Author,
		"evaluationCount": item.EvalCount,
		"consensus":       item.Consensus,
		"evidenceScore":   item.EvidenceScore,
		"evidenceStatus":  item.EvidenceStatus,
		"applied":         item.Applied,
		"createdAt":       item.CreatedAt,
	}
}

func queueItemPayload(item store.QueueItem) map[string]any {
	payload := map[string]any{
		"id":                  item.ID,
		"paragraphId":         item.ParagraphID,
		"suggestionId":        item.SuggestionID,
		"consensusAtCreation": item.ConsensusAtCreation,
		"currentConsensus":    item.CurrentConsensus,
		"evaluationCount":     item.EvaluationCount,
		"status":              item.Status,
		"stale":               item.Stale,
		"createdAt":           item.CreatedAt,
	}
	if item.AdminNotes != "" {
		payload["adminNotes"] = item.AdminNotes
	}
	if item.ResolvedBy != "" {
		payload["resolvedBy"] = item.ResolvedBy
	}
	if item.ResolvedAt != nil {
		payload["resolvedAt"] = item.ResolvedAt
	}
	return payload
}

func versionPayload(entry store.VersionEntry) map[string]any {
	payload := map[string]any{
		"version":     entry.Version,
		"text":        entry.Text,
		"consensus":   entry.Consensus,
		"finalizedBy": entry.FinalizedBy,
		"finalizedAt": entry.FinalizedAt,
		"isCurrent":   entry.IsCurrent,
	}
	if entry.ReplacedBy != "" {
		payload["replacedBy"] = entry.ReplacedBy
	}
	if entry.AdminEdited {
		payload["adminEdited"] = true
		payload["adminNotes"] = entry.AdminNotes
	}
	return payload
}

func evidencePayload(post store.EvidencePost) map[string]any {
	return map[string]any{
		"id":              post.ID,
		"statementId":     post.StatementID,
		"type":            post.EvidenceType,
		"support":         post.Support,
		"helpfulCount":    post.HelpfulCount,
		"notHelpfulCount": post.NotHelpfulCount,
		"weight":          post.Weight,
		"author":          post.Author,
		"createdAt":       post.CreatedAt,
	}
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

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Concord-Admin, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
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
		// an absent body means all-defaults, not malformed input
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, CodeNotFound, "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
