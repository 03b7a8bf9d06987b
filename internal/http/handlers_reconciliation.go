package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type linkRequest struct {
	PaymentID string `json:"payment_id"`
}

func (s *Server) handleImportStatement(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, format, err := readStatement(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.recon.ImportStatement(r.Context(), school, data, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Inserted > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.recon.View(r.Context(), school)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tolerance, err := parseTolerance(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.recon.Propose(r.Context(), school, tolerance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body linkRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	paymentID := strings.TrimSpace(body.PaymentID)
	if paymentID == "" {
		writeError(w, r, fmt.Errorf("%w: payment_id is required", errBadRequest))
		return
	}

	c, err := s.recon.Link(r.Context(), school, chi.URLParam(r, "bankTxnID"), paymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request) {
	school, err := schoolID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.recon.Unlink(r.Context(), school, chi.URLParam(r, "bankTxnID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
