// Package httpapi exposes the escrow room workflow over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appAuth "github.com/escrowroom/escrowroom/internal/application/auth"
	appDeposit "github.com/escrowroom/escrowroom/internal/application/deposit"
	appDispute "github.com/escrowroom/escrowroom/internal/application/dispute"
	appRoom "github.com/escrowroom/escrowroom/internal/application/room"
	"github.com/escrowroom/escrowroom/internal/domain/room"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
	domainUser "github.com/escrowroom/escrowroom/internal/domain/user"
	"github.com/escrowroom/escrowroom/internal/infrastructure/sse"
)

// RoomDefaults fills the settlement fields a room-creation request omits.
type RoomDefaults struct {
	ChainID       string
	TokenSymbol   string
	TokenDecimals int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	roomSvc             *appRoom.Service
	depositSvc          *appDeposit.Service
	disputeSvc          *appDispute.Service
	authSvc             *appAuth.Service
	txs                 settlement.Repository
	sseHub              *sse.Hub
	roomDefaults        RoomDefaults
	sessionCookieName   string
	sessionCookieSecure bool
}

func NewServer(
	roomSvc *appRoom.Service,
	depositSvc *appDeposit.Service,
	disputeSvc *appDispute.Service,
	authSvc *appAuth.Service,
	txs settlement.Repository,
	sseHub *sse.Hub,
	roomDefaults RoomDefaults,
	sessionCookieName string,
	sessionCookieSecure bool,
) *Server {
	return &Server{
		roomSvc:             roomSvc,
		depositSvc:          depositSvc,
		disputeSvc:          disputeSvc,
		authSvc:             authSvc,
		txs:                 txs,
		sseHub:              sseHub,
		roomDefaults:        roomDefaults,
		sessionCookieName:   sessionCookieName,
		sessionCookieSecure: sessionCookieSecure,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/logout", s.logout)
				r.Get("/me", s.me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", s.createRoom)
				r.Post("/join", s.joinRoom)
				r.Get("/code/{joinCode}", s.getRoomByCode)

				r.Route("/{roomId}", func(r chi.Router) {
					r.Get("/", s.getRoomState)
					r.Get("/events", s.roomEvents)

					r.Post("/role", s.selectRole)
					r.Post("/role/confirm", s.confirmRole)
					r.Post("/role/reset", s.resetRoles)

					r.Post("/amount", s.proposeAmount)
					r.Post("/amount/confirm", s.confirmAmount)

					r.Post("/fee", s.selectFeePayer)
					r.Post("/fee/confirm", s.confirmFee)

					r.Get("/deposit", s.getDepositInfo)
					r.Post("/deposit/check", s.checkDeposit)
					r.Post("/deposit/simulate", s.simulateDeposit)

					r.Post("/release", s.initiateRelease)
					r.Post("/release/confirm", s.confirmRelease)
					r.Post("/release/cancel", s.cancelRelease)
					r.Post("/payout-address", s.submitPayoutAddress)
					r.Post("/payout-address/confirm", s.confirmPayoutAddress)
					r.Post("/payout-address/change", s.changePayoutAddress)

					r.Post("/cancel", s.initiateCancel)
					r.Post("/cancel/confirm", s.confirmCancel)
					r.Post("/cancel/reject", s.rejectCancel)
					r.Post("/refund-address", s.submitRefundAddress)
					r.Post("/refund-address/confirm", s.confirmRefundAddress)
					r.Post("/refund-address/change", s.changeRefundAddress)

					r.Post("/disputes", s.fileDispute)
					r.Get("/disputes", s.listDisputes)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireRole(string(domainUser.RoleAdmin)))
				r.Get("/transactions", s.listTransactions)
				r.Post("/disputes/{disputeId}/review", s.reviewDispute)
				r.Post("/disputes/{disputeId}/resolve", s.resolveDispute)
			})
		})
	})

	return r
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps domain sentinel errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, room.ErrInvalidPhase):
		respondError(w, http.StatusConflict, "INVALID_PHASE", err.Error())
	case errors.Is(err, room.ErrForbidden):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, room.ErrValidation):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, room.ErrExternal):
		respondError(w, http.StatusBadGateway, "GATEWAY_ERROR", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
