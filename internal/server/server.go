package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/zombor/receipt-splitter/internal/advisor"
	"github.com/zombor/receipt-splitter/internal/ledger"
	"github.com/zombor/receipt-splitter/internal/receipt"
)

// Extractor reads a receipt image
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*receipt.Extraction, error)
}

// Advisor categorizes items and suggests splits
type Advisor interface {
	Categorize(ctx context.Context, items []receipt.Item) []advisor.CategorizedItem
	SuggestSplit(ctx context.Context, doc *receipt.Document) *advisor.SplitSuggestion
}

// Server handles HTTP requests for receipts and expenses
type Server struct {
	extractor Extractor
	advisor   Advisor
	ledger    ledger.Ledger
	basicAuth BasicAuth
	mux       *http.ServeMux
	handler   http.Handler
	logger    *slog.Logger
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(extractor Extractor, advisor Advisor, ledger ledger.Ledger, basicAuth BasicAuth) *Server {
	return NewServerWithMux(extractor, advisor, ledger, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(extractor Extractor, advisor Advisor, ledger ledger.Ledger, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		extractor: extractor,
		advisor:   advisor,
		ledger:    ledger,
		basicAuth: basicAuth,
		mux:       mux,
		logger:    slog.Default(),
	}
	s.registerRoutes()

	// Any origin may call the API, as the web client is served separately
	s.handler = cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           3600,
	}).Handler(s.mux)
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Splitter"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// API endpoints - receipts
	s.mux.HandleFunc("POST /api/receipts/process", s.requireAuth(s.handleProcessReceipt))
	s.mux.HandleFunc("POST /api/receipts/categorize", s.requireAuth(s.handleCategorize))
	s.mux.HandleFunc("POST /api/receipts/split", s.requireAuth(s.handleSuggestSplit))

	// API endpoints - ledger
	s.mux.HandleFunc("POST /api/expenses", s.requireAuth(s.handleCreateExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	s.mux.HandleFunc("GET /api/groups", s.requireAuth(s.handleListGroups))
	s.mux.HandleFunc("GET /api/friends", s.requireAuth(s.handleListFriends))

	// Probes are served without auth
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
