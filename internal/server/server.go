// Package server exposes the negotiation engine over HTTP: a JSON API for
// creating and controlling sessions and a WebSocket endpoint per party.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/bus"
	"github.com/dayuer/haggle-go/internal/decision"
	"github.com/dayuer/haggle-go/internal/lane"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/logger"
	"github.com/dayuer/haggle-go/internal/session"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// TierStats is the decision pipeline view used by /api/status.
type TierStats interface {
	Tiers() []string
	Stats() map[string]decision.TierStats
}

// Market resolves listings and their category rows for market analysis.
type Market interface {
	Resolve(ctx context.Context, raw string) (*listing.Listing, error)
	Category(name string) listing.Category
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	apiKey   string
	sessions *session.Manager
	market   Market
	bus      *bus.Bus
	lanes    *lane.Manager
	tiers    TierStats
	log      *logger.Logger

	heartbeat time.Duration
	conns     map[*wsConn]bool
	connMu    sync.Mutex

	activeRequests atomic.Int64
	totalRequests  atomic.Int64
	latency        *latencyWindow
	startTime      time.Time

	mux *http.ServeMux
	srv *http.Server
}

// Config configures a Server.
type Config struct {
	Addr     string
	APIKey   string
	Sessions *session.Manager
	Market   Market
	Bus      *bus.Bus
	Lanes    *lane.Manager
	Pipeline TierStats
	// Heartbeat is the WebSocket ping interval (default 10s).
	Heartbeat time.Duration
	Logger    *logger.Logger
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewComponentLogger("server")
	}
	s := &Server{
		addr:      cfg.Addr,
		apiKey:    cfg.APIKey,
		sessions:  cfg.Sessions,
		market:    cfg.Market,
		bus:       cfg.Bus,
		lanes:     cfg.Lanes,
		tiers:     cfg.Pipeline,
		log:       cfg.Logger,
		heartbeat: cfg.Heartbeat,
		conns:     make(map[*wsConn]bool),
		latency:   newLatencyWindow(time.Minute),
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.api(s.handleStatus))
	s.mux.HandleFunc("POST /api/sessions", s.api(s.handleCreate))
	s.mux.HandleFunc("GET /api/sessions", s.api(s.handleList))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.api(s.handleGet))
	s.mux.HandleFunc("POST /api/sessions/{id}/{action}", s.api(s.handleControl))
	s.mux.HandleFunc("POST /api/market-analysis", s.api(s.handleMarketAnalysis))
	s.mux.HandleFunc("POST /api/seller-response", s.api(s.handleSellerResponse))
	s.mux.HandleFunc("GET /ws/{role}/{id}", s.handleWS)
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is canceled, then closes every socket and shuts
// the listener down.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http api listening", "addr", s.addr)

	go s.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		s.closeAllWS()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// --- Middleware ---

// api applies bearer auth and request accounting.
func (s *Server) api(handler http.HandlerFunc) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		s.activeRequests.Add(1)
		start := time.Now()
		defer func() {
			s.activeRequests.Add(-1)
			s.totalRequests.Add(1)
			s.latency.Record(time.Since(start))
		}()
		handler(w, r)
	})
}

func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.apiKey {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		handler(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	avgMs, recent := s.latency.Avg()
	status := map[string]any{
		"uptime":         int(time.Since(s.startTime).Seconds()),
		"activeRequests": s.activeRequests.Load(),
		"totalRequests":  s.totalRequests.Load(),
		"avgLatencyMs":   avgMs,
		"recentRequests": recent,
		"wsConnections":  s.WSConnectionCount(),
	}
	if s.sessions != nil {
		counts := s.sessions.Counts()
		total := 0
		for _, n := range counts {
			total += n
		}
		status["sessions"] = map[string]any{"total": total, "byState": counts}
		if a := s.sessions.Archive(); a != nil {
			status["archived"] = len(a.List())
		}
	}
	if s.lanes != nil {
		status["lanes"] = s.lanes.Stats()
	}
	if s.tiers != nil {
		status["tiers"] = s.tiers.Tiers()
		status["tierStats"] = s.tiers.Stats()
	}
	writeJSON(w, http.StatusOK, status)
}

// createResponse is the body returned by POST /api/sessions.
type createResponse struct {
	Success   bool             `json:"success"`
	SessionID string           `json:"sessionId,omitempty"`
	Listing   *listing.Listing `json:"productListing,omitempty"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, createResponse{Error: "invalid JSON"})
		return
	}

	snap, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			s.log.Error("create session failed", "error", err)
		}
		writeJSON(w, code, createResponse{Error: err.Error()})
		return
	}

	resp := createResponse{Success: true, SessionID: snap.ID, Listing: snap.Listing}
	if snap.Listing.Synthetic {
		resp.Message = "listing details could not be read, using an estimate for the " + snap.Listing.Category + " category"
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionSummary is one row of GET /api/sessions.
type sessionSummary struct {
	ID           string          `json:"sessionId"`
	State        session.State   `json:"state"`
	Outcome      session.Outcome `json:"outcome"`
	Title        string          `json:"title"`
	ListingPrice int64           `json:"listingPrice"`
	CurrentOffer int64           `json:"currentOffer"`
	FinalPrice   int64           `json:"finalPrice,omitempty"`
	Messages     int             `json:"messages"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	snaps := s.sessions.List()
	out := make([]sessionSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, sessionSummary{
			ID:           snap.ID,
			State:        snap.State,
			Outcome:      snap.Outcome,
			Title:        snap.Listing.Title,
			ListingPrice: snap.Listing.Price,
			CurrentOffer: snap.CurrentOffer,
			FinalPrice:   snap.FinalPrice,
			Messages:     len(snap.Messages),
			CreatedAt:    snap.CreatedAt,
			UpdatedAt:    snap.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "total": len(out)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	switch action := r.PathValue("action"); action {
	case "pause":
		err = s.sessions.Pause(r.Context(), id)
	case "resume":
		err = s.sessions.Resume(r.Context(), id)
	case "reset":
		err = s.sessions.Reset(r.Context(), id)
	default:
		writeJSONError(w, "unknown action "+action, http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	snap, err := s.sessions.Get(id)
	if err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "state": snap.State, "outcome": snap.Outcome})
}

// marketResponse is the body returned by POST /api/market-analysis.
type marketResponse struct {
	Success bool               `json:"success"`
	Listing *listing.Listing   `json:"productListing"`
	Market  listing.MarketView `json:"market"`
	// OpeningOffer is the first move the rules would make.
	OpeningAction strategy.Action `json:"recommendedAction"`
	OpeningOffer  int64           `json:"recommendedOpeningOffer"`
	Message       string          `json:"message,omitempty"`
}

func (s *Server) handleMarketAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		writeJSONError(w, "market analysis unavailable", http.StatusServiceUnavailable)
		return
	}
	var req session.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	cfg, err := req.Config.Normalize()
	if err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	ref := strings.TrimSpace(req.ProductReference)
	if ref == "" {
		writeJSONError(w, "empty product reference", http.StatusBadRequest)
		return
	}

	l, err := s.market.Resolve(r.Context(), ref)
	if err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	opening := cfg.Evaluate(strategy.State{ListingPrice: l.Price})
	resp := marketResponse{
		Success:       true,
		Listing:       l,
		Market:        listing.Assess(l, s.market.Category(l.Category)),
		OpeningAction: opening.Action,
		OpeningOffer:  opening.Price,
	}
	if l.Synthetic {
		resp.Message = "listing details could not be read, using an estimate for the " + l.Category + " category"
	}
	writeJSON(w, http.StatusOK, resp)
}

// sellerResponse is the body of POST /api/seller-response, the HTTP
// fallback for a seller without a socket.
type sellerResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (s *Server) handleSellerResponse(w http.ResponseWriter, r *http.Request) {
	var req sellerResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, "empty message", http.StatusBadRequest)
		return
	}
	if !s.sessions.Exists(req.SessionID) {
		writeJSONError(w, "session not found", http.StatusNotFound)
		return
	}
	if err := s.bus.Receive(req.SessionID, bus.RoleSeller, req.Message); err != nil {
		writeJSONError(w, err.Error(), statusFor(err))
		return
	}
	s.log.WithSession(req.SessionID).Debug("seller message over http")
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "response queued"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrConfigInvalid), errors.Is(err, listing.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, bus.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, bus.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, lane.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
