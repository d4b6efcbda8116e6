package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/receipt-splitter/internal/advisor"
	"github.com/zombor/receipt-splitter/internal/imaging"
	"github.com/zombor/receipt-splitter/internal/ledger"
	"github.com/zombor/receipt-splitter/internal/metrics"
	"github.com/zombor/receipt-splitter/internal/receipt"
)

const (
	// maxFormSize allows for high-resolution phone photos and PDFs
	maxFormSize = int64(50 << 20)
	maxBodySize = int64(1 << 20)
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// processResponse is the success envelope of the process endpoint
type processResponse struct {
	Status           string                    `json:"status"`
	Data             *receipt.Document         `json:"data"`
	Outcome          receipt.Outcome           `json:"outcome"`
	ImageURL         string                    `json:"image_url"`
	CategorizedItems []advisor.CategorizedItem `json:"categorized_items,omitempty"`
	SplitSuggestion  *advisor.SplitSuggestion  `json:"split_suggestion,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// contentTypeFor determines the type of an uploaded file, falling back to
// its extension when the client sent none
func contentTypeFor(header string, filename string) string {
	contentType := header
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// handleProcessReceipt extracts a receipt from an uploaded image
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		s.logger.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		s.logger.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.logger.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusBadRequest, "Error reading file. Please try again.")
		return
	}
	metrics.ObserveUpload(len(data))

	// The size limit applies to the upload as sent, before any conversion
	if len(data) > imaging.MaxBytes {
		s.logger.Error("Upload exceeds size limit", "filename", header.Filename, "size", len(data))
		writeError(w, http.StatusBadRequest, "Image size exceeds 10MB limit")
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	data, converted, err := imaging.Normalize(data, contentType)
	if err != nil {
		s.logger.Error("Error converting upload", "filename", header.Filename, "content_type", contentType, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if converted {
		s.logger.Info("Converted upload to PNG", "filename", header.Filename, "content_type", contentType)
	}

	extraction, err := s.extractor.Extract(r.Context(), data)
	if err != nil {
		s.logger.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := processResponse{
		Status:   "success",
		Data:     extraction.Document,
		Outcome:  extraction.Outcome,
		ImageURL: extraction.ImageURL,
	}
	query := r.URL.Query()
	if flag(query.Get("categorize")) {
		resp.CategorizedItems = s.advisor.Categorize(r.Context(), extraction.Document.Items)
	}
	if flag(query.Get("suggest_split")) {
		resp.SplitSuggestion = s.advisor.SuggestSplit(r.Context(), extraction.Document)
	}

	writeJSON(w, http.StatusOK, resp)
}

func flag(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

type categorizeRequest struct {
	Items []receipt.Item `json:"items"`
}

// handleCategorize categorizes the items of a receipt
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, s.advisor.Categorize(r.Context(), req.Items))
}

type splitRequest struct {
	Receipt *receipt.Document `json:"receipt"`
}

// handleSuggestSplit suggests how to split a receipt
func (s *Server) handleSuggestSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Receipt == nil {
		writeError(w, http.StatusBadRequest, "receipt is required")
		return
	}
	writeSuccess(w, s.advisor.SuggestSplit(r.Context(), req.Receipt))
}

type createExpenseRequest struct {
	Description  string            `json:"description"`
	Amount       float64           `json:"amount"`
	GroupID      *int64            `json:"group_id"`
	SplitEqually *bool             `json:"split_equally"`
	Users        []ledger.Share    `json:"users"`
	ReceiptData  *receipt.Document `json:"receipt_data"`
}

// handleCreateExpense records an expense in the ledger
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := ledger.ExpenseInput{
		Description:  req.Description,
		Amount:       req.Amount,
		GroupID:      req.GroupID,
		SplitEqually: req.SplitEqually == nil || *req.SplitEqually,
		Users:        req.Users,
		ReceiptData:  req.ReceiptData,
	}
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.ledger.CreateExpense(r.Context(), input)
	if err != nil {
		s.logger.Error("Error creating expense", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, expense)
}

// handleListGroups returns the ledger groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.Groups(r.Context())
	if err != nil {
		s.logger.Error("Error listing groups", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, groups)
}

// handleListFriends returns the ledger friends
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.ledger.Friends(r.Context())
	if err != nil {
		s.logger.Error("Error listing friends", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, friends)
}

// handleListExpenses returns recent expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := ledger.ExpenseQuery{Limit: ledger.DefaultLimit}

	if v := r.URL.Query().Get("group_id"); v != "" {
		groupID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid group_id: %q", v))
			return
		}
		query.GroupID = &groupID
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q", v))
			return
		}
		query.Limit = limit
	}

	expenses, err := s.ledger.Expenses(r.Context(), query)
	if err != nil {
		s.logger.Error("Error listing expenses", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, expenses)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
