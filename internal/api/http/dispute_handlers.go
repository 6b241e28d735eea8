package httpapi

import (
	"net/http"

	appDispute "github.com/escrowroom/escrowroom/internal/application/dispute"
)

type fileDisputeRequest struct {
	Explanation string  `json:"explanation"`
	ProofRef    *string `json:"proof_ref,omitempty"`
}

func (s *Server) fileDispute(w http.ResponseWriter, r *http.Request) {
	u := authUserFromContext(r.Context())
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	var req fileDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	d, err := s.disputeSvc.File(r.Context(), appDispute.FileInput{
		RoomID:      roomID,
		ReporterID:  u.UserID,
		Explanation: req.Explanation,
		ProofRef:    req.ProofRef,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) listDisputes(w http.ResponseWriter, r *http.Request) {
	roomID, err := parseUUIDParam(r, "roomId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid room id")
		return
	}
	disputes, err := s.disputeSvc.ListByRoom(r.Context(), roomID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"disputes": disputes})
}

type disputeNotesRequest struct {
	AdminNotes *string `json:"admin_notes,omitempty"`
}

func (s *Server) reviewDispute(w http.ResponseWriter, r *http.Request) {
	disputeID, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dispute id")
		return
	}
	var req disputeNotesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.disputeSvc.StartReview(r.Context(), disputeID, req.AdminNotes); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func (s *Server) resolveDispute(w http.ResponseWriter, r *http.Request) {
	disputeID, err := parseUUIDParam(r, "disputeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dispute id")
		return
	}
	var req disputeNotesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.disputeSvc.Resolve(r.Context(), disputeID, req.AdminNotes); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	txs, err := s.txs.List(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}
