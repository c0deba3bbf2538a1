package controller

import (
	"net/http"
	"strconv"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/domain/transaction"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// OrderController handles order-related HTTP requests.
type OrderController struct {
	orderRepo    order.Repository
	trailRepo    trail.Repository
	assignEngine *assignment.Engine
}

// NewOrderController creates a new OrderController.
func NewOrderController(
	orderRepo order.Repository,
	trailRepo trail.Repository,
	assignEngine *assignment.Engine,
) *OrderController {
	return &OrderController{
		orderRepo:    orderRepo,
		trailRepo:    trailRepo,
		assignEngine: assignEngine,
	}
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return
	}

	o, err := h.orderRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// List handles GET /api/v1/orders
func (h *OrderController) List(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := order.ListFilter{CustomerID: &customerID}
	if s := r.URL.Query().Get("status"); s != "" {
		status := order.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("payment_status"); s != "" {
		ps := order.PaymentStatus(s)
		filter.PaymentStatus = &ps
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	orders, err := h.orderRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, FromOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events handles GET /api/v1/orders/{id}/events
func (h *OrderController) Events(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return
	}

	events, err := h.trailRepo.ListByReference(r.Context(), transaction.OrderRef(id))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TrailEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromTrailEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Claim handles POST /api/v1/orders/{id}/claim. An agent claims a paid,
// unassigned order; a lost race reports assignment_conflict.
func (h *OrderController) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return
	}

	var req ClaimOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	agentID := parseUUID(req.AgentID)
	if agentID == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid agent_id", Code: "invalid_id"})
		return
	}

	if err := h.assignEngine.AssignToAgent(r.Context(), id, *agentID); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.orderRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOrder(o))
}
