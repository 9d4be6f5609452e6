package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"jackpotreels/internal/game"
	"jackpotreels/internal/stream"
)

type Server struct {
	log  *slog.Logger
	game *game.Service
	ws   *stream.WSServer
	mux  *chi.Mux
}

func New(logger *slog.Logger, gameSvc *game.Service, hub *stream.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	if hub != nil {
		s.ws = stream.NewWSServer(hub, logger)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Long-lived; kept outside the request timeout.
		r.Get("/sessions/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/tiers", s.handleTiers)
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}", s.handleSession)
			r.Post("/sessions/{id}/multiplier", s.handleMultiplier)
			r.Post("/sessions/{id}/purchases", s.handlePurchase)
			r.Post("/sessions/{id}/purchases/max", s.handleBuyMax)
			r.Post("/sessions/{id}/credit", s.handleCredit)
			r.Post("/sessions/{id}/spins", s.handleBeginSpin)
			r.Post("/sessions/{id}/spins/resolve", s.handleResolveSpin)
		})
	})
}

func (s *Server) handleTiers(w http.ResponseWriter, _ *http.Request) {
	rules := s.game.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers":         rules.Tiers,
		"credit_target": rules.CreditTarget,
		"entry_fee":     rules.EntryFee,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.CreateSession(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Multiplier int `json:"multiplier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.SetMultiplier(r.Context(), chi.URLParam(r, "id"), game.Multiplier(in.Multiplier))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePurchase buys spins. With spins omitted the amount must match a
// pricing tier. A purchase the balance cannot cover is only financed when
// accept_credit is set; otherwise the response carries the declined offer so
// the client can ask the player and resubmit.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount       decimal.Decimal `json:"amount"`
		Spins        int             `json:"spins"`
		AcceptCredit bool            `json:"accept_credit"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	confirm := game.AcceptCredit(in.AcceptCredit)

	var (
		out game.PurchaseResult
		err error
	)
	if in.Spins == 0 {
		out, err = s.game.PurchaseTier(r.Context(), id, in.Amount, confirm)
	} else {
		out, err = s.game.Purchase(r.Context(), id, in.Amount, in.Spins, confirm)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyMax(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AcceptCredit bool `json:"accept_credit"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.BuyMax(r.Context(), chi.URLParam(r, "id"), game.AcceptCredit(in.AcceptCredit))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.TakeCredit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBeginSpin(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.BeginSpin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolveSpin(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ResolveSpin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.ws == nil {
		writeError(w, http.StatusNotImplemented, "event stream disabled")
		return
	}
	view, err := s.game.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.ws.Serve(w, r, game.Update{SessionID: view.SessionID, View: view, At: time.Now().UTC()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrNotEnoughSpins), errors.Is(err, game.ErrSpinInProgress), errors.Is(err, game.ErrNoSpinPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidMultiplier), errors.Is(err, game.ErrInvalidPurchase):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func decodeOptionalJSON(r *http.Request, out any) error {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
