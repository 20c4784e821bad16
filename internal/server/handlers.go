package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tally-analytics-service/internal/models"
	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// errorResponse is the JSON error envelope. Stack traces and wrapped causes
// never leave the process; clients get the category, code and suggestion.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Category   string `json:"category"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	tallyErr, ok := tallyerrors.AsTallyError(err)
	if !ok {
		tallyErr = tallyerrors.InternalError(tallyerrors.CodeUnexpectedError, "request", err)
	}

	status := tallyErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	} else {
		s.logger.WithError(err).Warn("Request rejected")
	}

	s.respondJSON(w, status, errorResponse{Error: errorBody{
		Category:   string(tallyErr.Category),
		Code:       string(tallyErr.Code),
		Message:    tallyErr.Message,
		Suggestion: tallyErr.Suggestion,
	}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart backup upload, parses and analyzes it,
// and returns the analysis ID with the computed summary
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.UploadLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, tallyerrors.New(
			tallyerrors.CategoryFile, tallyerrors.CodeFileTooLarge,
			"could not read uploaded file; check the 'file' form field and the upload size limit"))
		return
	}
	defer file.Close()

	// Spool the upload to disk in chunks so a 2 GB backup never sits in
	// memory
	uploadPath, err := s.spoolUpload(file, header.Filename)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer os.Remove(uploadPath)

	outcome, err := s.parser.ParseFile(r.Context(), uploadPath)
	if err != nil {
		s.respondError(w, err)
		return
	}

	analysis := &Analysis{
		ID:         uuid.NewString(),
		FileName:   header.Filename,
		UploadedAt: time.Now(),
		Format:     string(outcome.Format),
		Strategy:   outcome.Strategy,
		Companies:  outcome.Records.Companies,
		Summary:    s.analyzer.Summarize(outcome.Records),
		records:    outcome.Records,
	}
	s.storeAnalysis(analysis)

	s.logger.WithFields(logger.Fields{
		"analysis_id": analysis.ID,
		"file_name":   analysis.FileName,
		"counts":      outcome.Records.Counts(),
	}).Info("Backup analyzed")

	s.respondJSON(w, http.StatusCreated, analysis)
}

// spoolUpload copies the upload stream to a temp file
func (s *Server) spoolUpload(src io.Reader, originalName string) (string, error) {
	dst, err := os.CreateTemp("", "tally-upload-*"+filepath.Ext(originalName))
	if err != nil {
		return "", tallyerrors.FileError(tallyerrors.CodeTempDirError, originalName, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", tallyerrors.FileError(tallyerrors.CodeFileTooLarge, originalName, err).
			WithSuggestion("the upload exceeded the size limit or was interrupted; retry with a smaller file")
	}
	return dst.Name(), nil
}

// requireAnalysis resolves the path ID to a cached analysis, writing a 404
// when it is unknown or expired
func (s *Server) requireAnalysis(w http.ResponseWriter, r *http.Request) *Analysis {
	id := chi.URLParam(r, "analysisID")
	analysis := s.lookupAnalysis(id)
	if analysis == nil {
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
			Category:   "file",
			Code:       "analysis_not_found",
			Message:    "no analysis with this ID; it may have expired",
			Suggestion: "re-upload the backup file",
		}})
		return nil
	}
	return analysis
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if analysis := s.requireAnalysis(w, r); analysis != nil {
		s.respondJSON(w, http.StatusOK, analysis)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if analysis := s.requireAnalysis(w, r); analysis != nil {
		s.respondJSON(w, http.StatusOK, analysis.Summary)
	}
}

// listParams reads limit/offset query parameters with bounds applied
func listParams(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

type ledgerPage struct {
	Total   int                    `json:"total"`
	Offset  int                    `json:"offset"`
	Ledgers []*models.LedgerRecord `json:"ledgers"`
}

func (s *Server) handleLedgers(w http.ResponseWriter, r *http.Request) {
	analysis := s.requireAnalysis(w, r)
	if analysis == nil {
		return
	}

	limit, offset := listParams(r, 100, 1000)
	ledgers := analysis.records.Ledgers
	page := paginate(ledgers, offset, limit)

	s.respondJSON(w, http.StatusOK, ledgerPage{
		Total:   len(ledgers),
		Offset:  offset,
		Ledgers: page,
	})
}

type voucherPage struct {
	Total    int                     `json:"total"`
	Offset   int                     `json:"offset"`
	Vouchers []*models.VoucherRecord `json:"vouchers"`
}

func (s *Server) handleVouchers(w http.ResponseWriter, r *http.Request) {
	analysis := s.requireAnalysis(w, r)
	if analysis == nil {
		return
	}

	limit, offset := listParams(r, 100, 1000)
	vouchers := analysis.records.Vouchers
	page := paginate(vouchers, offset, limit)

	s.respondJSON(w, http.StatusOK, voucherPage{
		Total:    len(vouchers),
		Offset:   offset,
		Vouchers: page,
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	analysis := s.requireAnalysis(w, r)
	if analysis == nil {
		return
	}

	view := chi.URLParam(r, "view")
	payload, err := buildDashboard(view, analysis)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, payload)
}
