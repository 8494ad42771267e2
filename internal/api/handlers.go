package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"labovik/internal/catalog"
	"labovik/internal/ledger"
	"labovik/internal/lifecycle"
	"labovik/internal/models"
	"labovik/internal/schedule"
	"labovik/internal/service"
)

type resourceRefDTO struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=lab equipment_unit"`
}

type recurrenceDTO struct {
	Pattern     string   `json:"pattern" validate:"required,oneof=daily weekly biweekly monthly"`
	EndDate     string   `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Occurrences int      `json:"occurrences,omitempty" validate:"gte=0"`
	Exceptions  []string `json:"exceptions,omitempty" validate:"dive,datetime=2006-01-02"`
}

type createReservationDTO struct {
	Resources   []resourceRefDTO `json:"resources" validate:"required,min=1,dive"`
	Start       time.Time        `json:"start" validate:"required"`
	End         time.Time        `json:"end" validate:"required"`
	RequestedBy string           `json:"requested_by" validate:"required"`
	Purpose     string           `json:"purpose,omitempty"`
	Attendees   int              `json:"attendees,omitempty" validate:"gte=0"`
	Notes       string           `json:"notes,omitempty"`
	Recurrence  *recurrenceDTO   `json:"recurrence,omitempty"`
	BudgetKey   string           `json:"budget_key,omitempty"`
}

type transitionDTO struct {
	Event        string   `json:"event" validate:"required,oneof=approve reject cancel confirm check_in complete"`
	ActorID      string   `json:"actor_id" validate:"required"`
	Capabilities []string `json:"capabilities,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	ActualCost   *float64 `json:"actual_cost,omitempty" validate:"omitempty,gte=0"`
}

type updateReservationDTO struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type ledgerTransactionDTO struct {
	Kind       string  `json:"kind" validate:"required,oneof=commit spend release"`
	Amount     float64 `json:"amount" validate:"gte=0"`
	BookingRef string  `json:"booking_ref" validate:"required"`
	Detail     string  `json:"detail,omitempty"`
}

type acknowledgeDTO struct {
	Type    string `json:"type" validate:"required,oneof=warning critical overspent"`
	ActorID string `json:"actor_id" validate:"required"`
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.svc.ListBookings(r.URL.Query().Get("status")))
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var dto createReservationDTO
	if !s.decode(w, r, &dto) {
		return
	}

	req := service.CreateRequest{
		Start:       dto.Start,
		End:         dto.End,
		RequestedBy: dto.RequestedBy,
		Purpose:     dto.Purpose,
		Attendees:   dto.Attendees,
		Notes:       dto.Notes,
		BudgetKey:   dto.BudgetKey,
	}
	for _, ref := range dto.Resources {
		req.Resources = append(req.Resources, models.ResourceRef{ResourceID: ref.ResourceID, Kind: ref.Kind})
	}
	if dto.Recurrence != nil {
		rec, err := dto.Recurrence.toModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Recurrence = rec
	}

	result, err := s.svc.CreateBooking(r.Context(), req)
	if err != nil {
		// Серия могла оборваться на таймауте блокировки после первых
		// успешных занятий; созданное возвращается вместе с ошибкой.
		if result != nil && len(result.Created) > 0 {
			status := http.StatusInternalServerError
			if errors.Is(err, schedule.ErrBusy) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]any{
				"error":   err.Error(),
				"created": result.Created,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (d *recurrenceDTO) toModel() (*models.Recurrence, error) {
	rec := &models.Recurrence{Pattern: d.Pattern, Occurrences: d.Occurrences}
	if d.EndDate != "" {
		end, err := time.Parse("2006-01-02", d.EndDate)
		if err != nil {
			return nil, err
		}
		rec.EndDate = end
	}
	for _, raw := range d.Exceptions {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
		rec.Exceptions = append(rec.Exceptions, day)
	}
	return rec, nil
}

func (s *HTTPServer) handleReservationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reservations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetReservation(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPut:
		s.handleUpdateReservation(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "transition" && r.Method == http.MethodPost:
		s.handleTransition(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, _ *http.Request, id string) {
	b, err := s.svc.GetBooking(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request, id string) {
	var dto updateReservationDTO
	if !s.decode(w, r, &dto) {
		return
	}

	b, err := s.svc.UpdateBooking(r.Context(), id, dto.Start, dto.End)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	var dto transitionDTO
	if !s.decode(w, r, &dto) {
		return
	}

	actor := models.Actor{ID: dto.ActorID, Capabilities: dto.Capabilities}
	b, err := s.svc.Transition(r.Context(), id, lifecycle.Event(dto.Event), actor, service.TransitionOptions{
		Reason:     dto.Reason,
		ActualCost: dto.ActualCost,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resource := strings.TrimSpace(r.URL.Query().Get("resource"))
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339")
		return
	}

	occupants := s.svc.ListConflicts(resource, from, to)
	writeJSON(w, http.StatusOK, map[string]any{"occupants": occupants})
}

// handleBudgets routes /api/v1/budgets/{scope}/{category}/{period}/...
func (s *HTTPServer) handleBudgets(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/budgets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 4 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	key := models.AccountKey{Scope: parts[0], Category: parts[1], FiscalPeriod: parts[2]}
	action := strings.Join(parts[3:], "/")

	switch {
	case action == "snapshot" && r.Method == http.MethodGet:
		s.handleBudgetSnapshot(w, key)
	case action == "transactions" && r.Method == http.MethodPost:
		s.handleBudgetTransaction(w, r, key)
	case action == "alerts/ack" && r.Method == http.MethodPost:
		s.handleBudgetAcknowledge(w, r, key)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleBudgetSnapshot(w http.ResponseWriter, key models.AccountKey) {
	snap, err := s.svc.BudgetSnapshot(key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleBudgetTransaction is the internal ledger hatch; the permission
// check keeps end-user keys away from it.
func (s *HTTPServer) handleBudgetTransaction(w http.ResponseWriter, r *http.Request, key models.AccountKey) {
	var dto ledgerTransactionDTO
	if !s.decode(w, r, &dto) {
		return
	}

	snap, err := s.svc.ApplyTransaction(models.LedgerTransaction{
		AccountKey: key,
		Kind:       dto.Kind,
		Amount:     dto.Amount,
		BookingRef: dto.BookingRef,
		Detail:     dto.Detail,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleBudgetAcknowledge(w http.ResponseWriter, r *http.Request, key models.AccountKey) {
	var dto acknowledgeDTO
	if !s.decode(w, r, &dto) {
		return
	}

	if err := s.svc.AcknowledgeAlert(key, dto.Type, models.Actor{ID: dto.ActorID}); err != nil {
		s.writeServiceError(w, err)
		return
	}
	snap, err := s.svc.BudgetSnapshot(key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dto any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeServiceError maps the engine's error taxonomy onto HTTP status
// codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *schedule.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "interval conflict",
			"conflicts": conflict.Conflicts,
		})
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrAlertNotFound),
		errors.Is(err, catalog.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, schedule.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
