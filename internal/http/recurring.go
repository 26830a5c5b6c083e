package http

import (
	"net/http"
	"time"

	"envelope/internal/core"
)

type recurringRequest struct {
	CategoryID  int64   `json:"category_id"`
	Amount      string  `json:"amount"`
	Description string  `json:"description"`
	Frequency   string  `json:"frequency"`
	DayOfMonth  *int    `json:"day_of_month"`
	DayOfWeek   *int    `json:"day_of_week"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

func (req recurringRequest) toTemplate(ownerID int64) (core.RecurringExpense, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	var end core.Date
	if req.EndDate != nil {
		if end, err = core.ParseDate(*req.EndDate); err != nil {
			return core.RecurringExpense{}, err
		}
	}
	return core.RecurringExpense{
		OwnerID:     ownerID,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Description: req.Description,
		Frequency:   core.Frequency(req.Frequency),
		DayOfMonth:  req.DayOfMonth,
		DayOfWeek:   req.DayOfWeek,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

type recurringResponse struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Amount      int64  `json:"amount_cents"`
	Description string `json:"description"`
	Frequency   string `json:"frequency"`
	DayOfMonth  *int   `json:"day_of_month,omitempty"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	IsActive    bool   `json:"is_active"`
	NextDue     string `json:"next_due_date,omitempty"`
	LastCreated string `json:"last_created,omitempty"`
}

func toRecurringResponse(re core.RecurringExpense) recurringResponse {
	resp := recurringResponse{
		ID:          re.ID,
		CategoryID:  re.CategoryID,
		Amount:      re.Amount.Cents,
		Description: re.Description,
		Frequency:   string(re.Frequency),
		DayOfMonth:  re.DayOfMonth,
		DayOfWeek:   re.DayOfWeek,
		StartDate:   re.StartDate.String(),
		IsActive:    re.IsActive,
	}
	if !re.EndDate.IsZero() {
		resp.EndDate = re.EndDate.String()
	}
	if !re.NextDue.IsZero() {
		resp.NextDue = re.NextDue.String()
	}
	if !re.LastCreated.IsZero() {
		resp.LastCreated = re.LastCreated.String()
	}
	return resp
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Amount      int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Description string `json:"description"`
	RecurringID *int64 `json:"recurring_id,omitempty"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		CategoryID:  e.CategoryID,
		Amount:      e.Amount.Cents,
		Date:        e.Date.String(),
		Description: e.Description,
		RecurringID: e.RecurringID,
	}
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templates, err := s.recurring.ListTemplates(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]recurringResponse, 0, len(templates))
	for _, re := range templates {
		out = append(out, toRecurringResponse(re))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	template, err := req.toTemplate(ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.recurring.CreateTemplate(r.Context(), template)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringResponse(created))
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	template, err := req.toTemplate(ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	template.ID = id
	updated, err := s.recurring.UpdateTemplate(r.Context(), template, core.DateOf(time.Now()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurringResponse(updated))
}

func (s *Server) handleDeactivateRecurring(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.recurring.DeactivateTemplate(r.Context(), ownerID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateExpenseNow(w http.ResponseWriter, r *http.Request) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.recurring.CreateExpenseNow(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateReports(ownerID)
	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

// handleCronRun materializes every due occurrence and sweeps budget
// alerts. Idempotent: a rerun with the same date creates nothing new.
// An optional JSON body {"today": "YYYY-MM-DD"} pins the reference
// date, mainly for backfills.
func (s *Server) handleCronRun(w http.ResponseWriter, r *http.Request) {
	today := core.DateOf(time.Now())
	if r.ContentLength > 0 {
		var req struct {
			Today string `json:"today"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Today != "" {
			var err error
			if today, err = core.ParseDate(req.Today); err != nil {
				writeError(w, r, err)
				return
			}
		}
	}

	created, err := s.recurring.ProcessDueBatch(r.Context(), today)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := s.budgets.CheckAlerts(r.Context(), core.PeriodOf(today.Time))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Materialization changes spend for any owner; drop everything.
	s.reportCache.DeletePrefix("")

	writeJSON(w, http.StatusOK, struct {
		ExpensesCreated int `json:"expenses_created"`
		AlertsRaised    int `json:"alerts_raised"`
	}{ExpensesCreated: created, AlertsRaised: alerts})
}
