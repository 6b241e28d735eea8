package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appRoom "github.com/escrowroom/escrowroom/internal/application/room"
)

type createRoomRequest struct {
	Name          string `json:"name"`
	ChainID       string `json:"chain_id,omitempty"`
	TokenSymbol   string `json:"token_symbol,omitempty"`
	TokenDecimals *int   `json:"token_decimals,omitempty"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	in := appRoom.CreateRoomInput{
		Name:          req.Name,
		ChainID:       req.ChainID,
		TokenSymbol:   req.TokenSymbol,
		TokenDecimals: s.roomDefaults.TokenDecimals,
		CreatorID:     u.UserID,
	}
	if in.ChainID == "" {
		in.ChainID = s.roomDefaults.ChainID
	}
	if in.TokenSymbol == "" {
		in.TokenSymbol = s.roomDefaults.TokenSymbol
	}
	if req.TokenDecimals != nil {
		in.TokenDecimals = *req.TokenDecimals
	}
	rm, err := s.roomSvc.CreateRoom(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rm)
}

type joinRoomRequest struct {
	JoinCode string `json:"join_code"`
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	var req joinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.roomSvc.JoinRoom(r.Context(), req.JoinCode, u.UserID); err != nil {
		respondServiceError(w, err)
		return
	}
	state, err := s.roomSvc.GetRoomByCode(r.Context(), req.JoinCode)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) getRoomByCode(w http.ResponseWriter, r *http.Request) {
	state, err := s.roomSvc.GetRoomByCode(r.Context(), chi.URLParam(r, "joinCode"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) getRoomState(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	state, err := s.roomSvc.GetRoomState(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// roomAction wraps the common pattern for step-machine endpoints: parse the
// room id, run the service call as the authenticated user, return the fresh
// room state.
func (s *Server) roomAction(w http.ResponseWriter, r *http.Request, fn func(roomID, userID uuid.UUID) error) {
	u := authUserFromContext(r.Context())
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	if err := fn(roomID, u.UserID); err != nil {
		respondServiceError(w, err)
		return
	}
	state, err := s.roomSvc.GetRoomState(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type selectRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) selectRole(w http.ResponseWriter, r *http.Request) {
	var req selectRoleRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.SelectRole(r.Context(), roomID, userID, req.Role)
	})
}

func (s *Server) confirmRole(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmRole(r.Context(), roomID, userID)
	})
}

func (s *Server) resetRoles(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ResetRoles(r.Context(), roomID, userID)
	})
}

type proposeAmountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) proposeAmount(w http.ResponseWriter, r *http.Request) {
	var req proposeAmountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ProposeAmount(r.Context(), roomID, userID, req.Amount)
	})
}

type confirmAmountRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (s *Server) confirmAmount(w http.ResponseWriter, r *http.Request) {
	var req confirmAmountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmAmount(r.Context(), roomID, userID, req.Confirmed)
	})
}

type selectFeeRequest struct {
	FeePayer string `json:"fee_payer"`
}

func (s *Server) selectFeePayer(w http.ResponseWriter, r *http.Request) {
	var req selectFeeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.SelectFeePayer(r.Context(), roomID, userID, req.FeePayer)
	})
}

func (s *Server) confirmFee(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmFee(r.Context(), roomID, userID)
	})
}

func (s *Server) getDepositInfo(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	info, err := s.roomSvc.GetDepositInfo(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) checkDeposit(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	res, err := s.depositSvc.CheckDeposit(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) simulateDeposit(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	res, err := s.depositSvc.SimulateDeposit(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) initiateRelease(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.InitiateRelease(r.Context(), roomID, userID)
	})
}

func (s *Server) confirmRelease(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmRelease(r.Context(), roomID, userID)
	})
}

func (s *Server) cancelRelease(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.CancelRelease(r.Context(), roomID, userID)
	})
}

type addressRequest struct {
	Address string `json:"address"`
}

func (s *Server) submitPayoutAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.SubmitPayoutAddress(r.Context(), roomID, userID, req.Address)
	})
}

func (s *Server) confirmPayoutAddress(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmPayoutAddress(r.Context(), roomID, userID)
	})
}

func (s *Server) changePayoutAddress(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ChangePayoutAddress(r.Context(), roomID, userID)
	})
}

func (s *Server) initiateCancel(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.InitiateCancel(r.Context(), roomID, userID)
	})
}

func (s *Server) confirmCancel(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmCancel(r.Context(), roomID, userID)
	})
}

func (s *Server) rejectCancel(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.RejectCancel(r.Context(), roomID, userID)
	})
}

func (s *Server) submitRefundAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.SubmitRefundAddress(r.Context(), roomID, userID, req.Address)
	})
}

func (s *Server) confirmRefundAddress(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ConfirmRefundAddress(r.Context(), roomID, userID)
	})
}

func (s *Server) changeRefundAddress(w http.ResponseWriter, r *http.Request) {
	s.roomAction(w, r, func(roomID, userID uuid.UUID) error {
		return s.roomSvc.ChangeRefundAddress(r.Context(), roomID, userID)
	})
}

// roomEvents streams the room's notifications over SSE until the client
// disconnects. Only participants (and admins) may watch a room.
func (s *Server) roomEvents(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	state, err := s.roomSvc.GetRoomState(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	member := u.Role == "ADMIN"
	for _, p := range state.Participants {
		if p.UserID == u.UserID {
			member = true
		}
	}
	if !member {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "not a participant of this room")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := s.sseHub.Subscribe(roomID)
	defer s.sseHub.Unsubscribe(client.ClientID)

	for {
		select {
		case <-r.Context().Done():
			return
		case data, open := <-client.Messages:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
