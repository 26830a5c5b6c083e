package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"envelope/internal/core"
)

func reportCacheKey(ownerID int64, period core.Period) string {
	return strconv.FormatInt(ownerID, 10) + ":" + period.String()
}

// invalidateReports drops the owner's cached reports for every period.
func (s *Server) invalidateReports(ownerID int64) {
	s.reportCache.DeletePrefix(strconv.FormatInt(ownerID, 10) + ":")
}

// periodFromRequest reads an optional ?period=YYYY-MM query, defaulting
// to the current month.
func periodFromRequest(r *http.Request) (core.Period, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return core.PeriodOf(time.Now()), nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return core.Period{}, fmt.Errorf("%w: invalid period %q, want YYYY-MM", core.ErrValidation, raw)
	}
	return core.Period{Year: t.Year(), Month: t.Month()}, nil
}

func (s *Server) handleGetBudgets(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	period, err := periodFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportCacheKey(ownerID, period)
	if report, ok := s.reportCache.Get(key); ok {
		writeJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.budgets.Report(r.Context(), ownerID, period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.reportCache.Set(key, report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetOverallLimit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Limit *string `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseOptionalLimit(req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budgets.SetOverallLimit(r.Context(), ownerID, limit); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(ownerID)
	w.WriteHeader(http.StatusNoContent)
}

type categoryResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	MonthlyLimit *int64 `json:"monthly_limit_cents"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	resp := categoryResponse{ID: c.ID, Name: c.Name}
	if c.MonthlyLimit != nil {
		resp.MonthlyLimit = &c.MonthlyLimit.Cents
	}
	return resp
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := s.budgets.ListCategories(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Name         string  `json:"name"`
		MonthlyLimit *string `json:"monthly_limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseOptionalLimit(req.MonthlyLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	category, err := s.budgets.CreateCategory(r.Context(), core.Category{
		OwnerID:      ownerID,
		Name:         req.Name,
		MonthlyLimit: limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(ownerID)
	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (s *Server) handleSetCategoryLimit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categoryID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Limit *string `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseOptionalLimit(req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budgets.SetCategoryLimit(r.Context(), ownerID, categoryID, limit); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(ownerID)
	w.WriteHeader(http.StatusNoContent)
}
