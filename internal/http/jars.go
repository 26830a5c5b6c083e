package http

import (
	"net/http"
	"time"

	"envelope/internal/core"
)

type jarResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Balance    int64   `json:"balance_cents"`
	Active     bool    `json:"active"`
}

func toJarResponse(j core.Jar) jarResponse {
	return jarResponse{
		ID:         j.ID,
		Name:       j.Name,
		Percentage: j.Percentage,
		Balance:    j.Balance.Cents,
		Active:     j.Active,
	}
}

func (s *Server) handleListJars(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jars, err := s.jars.ListJars(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jarResponse, 0, len(jars))
	for _, j := range jars {
		out = append(out, toJarResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateJar(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Name       string  `json:"name"`
		Percentage float64 `json:"percentage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	jar, err := s.jars.CreateJar(r.Context(), core.Jar{
		OwnerID:    ownerID,
		Name:       req.Name,
		Percentage: req.Percentage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJarResponse(jar))
}

func (s *Server) handleUpdateJar(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jarID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Name       *string  `json:"name"`
		Percentage *float64 `json:"percentage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	jar, err := s.jars.UpdateJar(r.Context(), ownerID, jarID, req.Name, req.Percentage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJarResponse(jar))
}

func (s *Server) handleDeactivateJar(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jarID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.jars.DeactivateJar(r.Context(), ownerID, jarID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shares, err := s.jars.SplitIncome(r.Context(), ownerID, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type shareResponse struct {
		JarID  int64 `json:"jar_id"`
		Amount int64 `json:"amount_cents"`
	}
	resp := struct {
		Amount int64           `json:"amount_cents"`
		Shares []shareResponse `json:"shares"`
	}{Amount: amount.Cents}
	for _, sh := range shares {
		resp.Shares = append(resp.Shares, shareResponse{JarID: sh.JarID, Amount: sh.Amount.Cents})
	}
	writeJSON(w, http.StatusCreated, resp)
}

type transferResponse struct {
	ID        int64  `json:"id"`
	FromJarID int64  `json:"from_jar_id"`
	ToJarID   int64  `json:"to_jar_id"`
	Amount    int64  `json:"amount_cents"`
	Note      string `json:"note,omitempty"`
	Timestamp string `json:"timestamp"`
}

func toTransferResponse(t core.Transfer) transferResponse {
	return transferResponse{
		ID:        t.ID,
		FromJarID: t.FromJarID,
		ToJarID:   t.ToJarID,
		Amount:    t.Amount.Cents,
		Note:      t.Note,
		Timestamp: t.Timestamp.Format(time.RFC3339),
	}
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	transfers, err := s.jars.ListTransfers(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		FromJarID int64  `json:"from_jar_id"`
		ToJarID   int64  `json:"to_jar_id"`
		Amount    string `json:"amount"`
		Note      string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	transfer, err := s.jars.Transfer(r.Context(), core.Transfer{
		OwnerID:   ownerID,
		FromJarID: req.FromJarID,
		ToJarID:   req.ToJarID,
		Amount:    amount,
		Note:      req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferResponse(transfer))
}
