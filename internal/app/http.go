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

	"prodplan/api/internal/archive"
	"prodplan/api/internal/rows"
)

const maxUploadBytes = 16 << 20

type HTTPServer struct {
	service    *Service
	archive    *archive.Archive
	corsOrigin string
}

func NewHTTPServer(service *Service, uploads *archive.Archive, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, archive: uploads, corsOrigin: corsOrigin}
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
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	// Everything below is /api/accounts/{accountId}/...
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "accounts" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	accountID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || accountID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "account id must be a positive integer", nil)
		return
	}
	rest := parts[3:]

	switch {
	case len(rest) >= 1 && rest[0] == "headings":
		s.handleHeadings(w, r, accountID, rest[1:])
	case len(rest) >= 1 && rest[0] == "snapshots":
		s.handleSnapshots(w, r, accountID, rest[1:])
	case len(rest) >= 1 && rest[0] == "imports":
		s.handleImports(w, r, accountID, rest[1:])
	case len(rest) >= 1 && rest[0] == "pdms":
		s.handlePdms(w, r, accountID, rest[1:])
	case len(rest) >= 1 && rest[0] == "qc-errors":
		s.handleQcErrors(w, r, accountID, rest[1:])
	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		limit := queryInt(r, "limit", 20)
		resp := s.service.SearchHeadings(r.Context(), accountID, r.URL.Query().Get("q"), limit)
		writeJSON(w, http.StatusOK, resp)
	case len(rest) == 1 && rest[0] == "activity" && r.Method == http.MethodGet:
		limit := queryInt(r, "limit", 50)
		entries, err := s.service.RecentActivity(r.Context(), accountID, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityViews(entries)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleHeadings(w http.ResponseWriter, r *http.Request, accountID int64, rest []string) {
	actor := r.Header.Get("X-Actor")

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		headings, err := s.service.ListHeadings(r.Context(), accountID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"headings": headingViews(headings)})

	case len(rest) == 1 && rest[0] == "import" && r.Method == http.MethodPost:
		input, payload, err := s.readImportInput(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		result, err := s.service.ImportHeadings(r.Context(), accountID, input, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		if len(payload) > 0 {
			s.archive.StoreImport(r.Context(), result.BatchID, input.FileName, payload)
		}
		writeJSON(w, http.StatusCreated, result)

	case len(rest) == 1 && r.Method == http.MethodGet:
		headingID, ok := pathID(w, rest[0], "heading")
		if !ok {
			return
		}
		h, err := s.service.GetHeading(r.Context(), accountID, headingID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, headingView(h))

	case len(rest) == 1 && r.Method == http.MethodPut:
		headingID, ok := pathID(w, rest[0], "heading")
		if !ok {
			return
		}
		var body HeadingEditInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		h, err := s.service.EditHeading(r.Context(), accountID, headingID, body, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, headingView(h))

	case len(rest) == 1 && r.Method == http.MethodDelete:
		headingID, ok := pathID(w, rest[0], "heading")
		if !ok {
			return
		}
		if err := s.service.DeleteHeading(r.Context(), accountID, headingID, actor); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSnapshots(w http.ResponseWriter, r *http.Request, accountID int64, rest []string) {
	actor := r.Header.Get("X-Actor")

	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		input, payload, err := s.readSnapshotInput(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		result, err := s.service.UploadSnapshot(r.Context(), accountID, input, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		if len(payload) > 0 {
			s.archive.StoreSnapshot(r.Context(), result.SnapshotID, input.FileName, payload)
		}
		writeJSON(w, http.StatusCreated, result)

	case len(rest) == 0 && r.Method == http.MethodGet:
		snapshots, err := s.service.ListSnapshots(r.Context(), accountID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshotViews(snapshots)})

	case len(rest) == 2 && rest[1] == "items" && r.Method == http.MethodGet:
		items, err := s.service.SnapshotItems(r.Context(), accountID, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": snapshotItemViews(items)})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleImports(w http.ResponseWriter, r *http.Request, accountID int64, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		batches, err := s.service.ListImportBatches(r.Context(), accountID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": batchViews(batches)})

	case len(rest) == 2 && rest[1] == "items" && r.Method == http.MethodGet:
		items, err := s.service.ImportBatchItems(r.Context(), accountID, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		views := make([]map[string]any, 0, len(items))
		for _, item := range items {
			views = append(views, map[string]any{
				"headingId": item.HeadingID,
				"action":    item.Action,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": views})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePdms(w http.ResponseWriter, r *http.Request, accountID int64, rest []string) {
	actor := r.Header.Get("X-Actor")

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			pdms, err := s.service.ListPdms(r.Context(), accountID)
			if err != nil {
				s.fail(w, err)
				return
			}
			views := make([]map[string]any, 0, len(pdms))
			for _, p := range pdms {
				views = append(views, pdmView(p, nil))
			}
			writeJSON(w, http.StatusOK, map[string]any{"pdms": views})
		case http.MethodPost:
			var body PdmCreateInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			p, err := s.service.CreatePdm(r.Context(), accountID, body, actor)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, pdmView(p, nil))
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	pdmID, ok := pathID(w, rest[0], "pdm")
	if !ok {
		return
	}
	rest = rest[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		p, refs, err := s.service.GetPdm(r.Context(), accountID, pdmID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, refs))

	case len(rest) == 0 && r.Method == http.MethodPut:
		var body PdmUpdateInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		p, err := s.service.UpdatePdm(r.Context(), accountID, pdmID, body, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, nil))

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if err := s.service.DeletePdm(r.Context(), accountID, pdmID, actor); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 1 && rest[0] == "uploaded" && r.Method == http.MethodPut:
		var body struct {
			Uploaded bool `json:"uploaded"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		p, err := s.service.SetPdmUploaded(r.Context(), accountID, pdmID, body.Uploaded, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, nil))

	case len(rest) == 1 && rest[0] == "qc-status" && r.Method == http.MethodPut:
		var body struct {
			QcStatus string `json:"qcStatus"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		p, err := s.service.SetPdmQcStatus(r.Context(), accountID, pdmID, body.QcStatus, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, nil))

	case len(rest) == 1 && rest[0] == "rectification" && r.Method == http.MethodPut:
		var body struct {
			RectificationStatus string `json:"rectificationStatus"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		p, err := s.service.SetPdmRectification(r.Context(), accountID, pdmID, body.RectificationStatus, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, nil))

	case len(rest) == 1 && rest[0] == "validation" && r.Method == http.MethodPut:
		var body struct {
			ValidationStatus string `json:"validationStatus"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		p, err := s.service.SetPdmValidation(r.Context(), accountID, pdmID, body.ValidationStatus, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pdmView(p, nil))

	case len(rest) == 1 && rest[0] == "events" && r.Method == http.MethodGet:
		events, err := s.service.PdmStatusEvents(r.Context(), accountID, pdmID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": eventViews(events)})

	case len(rest) == 1 && rest[0] == "feedback" && r.Method == http.MethodPost:
		var body FeedbackInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		feedback, err := s.service.SubmitQcFeedback(r.Context(), accountID, pdmID, body, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, feedbackView(feedback))

	case len(rest) == 1 && rest[0] == "feedback" && r.Method == http.MethodGet:
		feedback, err := s.service.QcFeedback(r.Context(), accountID, pdmID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, feedbackView(feedback))

	case len(rest) == 2 && rest[0] == "feedback" && rest[1] == "history" && r.Method == http.MethodGet:
		history, err := s.service.FeedbackHistory(r.Context(), accountID, pdmID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": historyViews(history)})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleQcErrors(w http.ResponseWriter, r *http.Request, accountID int64, rest []string) {
	actor := r.Header.Get("X-Actor")

	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body QcErrorInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		report, err := s.service.CreateQcError(r.Context(), accountID, body, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, qcErrorView(report))

	case len(rest) == 0 && r.Method == http.MethodGet:
		reports, err := s.service.ListQcErrors(r.Context(), accountID)
		if err != nil {
			s.fail(w, err)
			return
		}
		views := make([]map[string]any, 0, len(reports))
		for _, report := range reports {
			views = append(views, qcErrorView(report))
		}
		writeJSON(w, http.StatusOK, map[string]any{"qcErrors": views})

	case len(rest) == 2 && rest[1] == "status" && r.Method == http.MethodPut:
		var body struct {
			RectificationStatus string `json:"rectificationStatus"`
			ValidationStatus    string `json:"validationStatus"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		report, err := s.service.SetQcErrorStatus(r.Context(), accountID, rest[0], body.RectificationStatus, body.ValidationStatus, actor)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, qcErrorView(report))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// readImportInput accepts either a JSON body with pre-tokenized cells or a raw
// CSV upload. The raw bytes come back too so the caller can archive them.
func (s *HTTPServer) readImportInput(r *http.Request) (ImportInput, []byte, error) {
	if isCSV(r) {
		payload, cells, err := readCSVBody(r)
		if err != nil {
			return ImportInput{}, nil, err
		}
		return ImportInput{
			Cells:         cells,
			ContextFamily: r.URL.Query().Get("contextFamily"),
			FileName:      uploadFileName(r),
		}, payload, nil
	}
	var input ImportInput
	if err := decodeBody(r, &input); err != nil {
		return ImportInput{}, nil, validationError(err.Error(), nil)
	}
	return input, nil, nil
}

func (s *HTTPServer) readSnapshotInput(r *http.Request) (SnapshotInput, []byte, error) {
	if isCSV(r) {
		payload, cells, err := readCSVBody(r)
		if err != nil {
			return SnapshotInput{}, nil, err
		}
		return SnapshotInput{Cells: cells, FileName: uploadFileName(r)}, payload, nil
	}
	var input SnapshotInput
	if err := decodeBody(r, &input); err != nil {
		return SnapshotInput{}, nil, validationError(err.Error(), nil)
	}
	return input, nil, nil
}

func isCSV(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv")
}

func readCSVBody(r *http.Request) ([]byte, [][]string, error) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	cells, err := rows.ReadCSV(strings.NewReader(string(payload)))
	if err != nil {
		return nil, nil, validationError("could not parse CSV upload", map[string]any{"error": err.Error()})
	}
	return payload, cells, nil
}

func uploadFileName(r *http.Request) string {
	if name := r.Header.Get("X-File-Name"); name != "" {
		return name
	}
	return r.URL.Query().Get("fileName")
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func pathID(w http.ResponseWriter, raw, entity string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", entity+" id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
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
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Actor, X-File-Name, X-Request-ID")
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
