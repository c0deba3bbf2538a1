package controller

import (
	"net/http"
	"strconv"

	"github.com/dbakare/gromart/internal/application/checkout"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/application/lists"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ShoppingListController handles shopping list HTTP requests.
type ShoppingListController struct {
	lists     *lists.UseCase
	lifecycle *lifecycle.Engine
	checkout  *checkout.UseCase
	listRepo  shoppinglist.Repository
}

// NewShoppingListController creates a new ShoppingListController.
func NewShoppingListController(
	listsUC *lists.UseCase,
	lc *lifecycle.Engine,
	checkoutUC *checkout.UseCase,
	listRepo shoppinglist.Repository,
) *ShoppingListController {
	return &ShoppingListController{
		lists:     listsUC,
		lifecycle: lc,
		checkout:  checkoutUC,
		listRepo:  listRepo,
	}
}

// Create handles POST /api/v1/shopping-lists
func (h *ShoppingListController) Create(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateShoppingListRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	marketID := parseUUID(req.MarketID)
	if marketID == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid market_id", Code: "invalid_id"})
		return
	}

	list, err := h.lists.Create(r.Context(), req.Name, customerID, *marketID, toDomainItems(req.Items))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromShoppingList(list))
}

// Get handles GET /api/v1/shopping-lists/{id}
func (h *ShoppingListController) Get(w http.ResponseWriter, r *http.Request) {
	actorID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid shopping list id", Code: "invalid_id"})
		return
	}

	list, err := h.lists.Get(r.Context(), id, actorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromShoppingList(list))
}

// List handles GET /api/v1/shopping-lists
func (h *ShoppingListController) List(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	found, err := h.listRepo.ListByCustomer(r.Context(), customerID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*ShoppingListResponse, 0, len(found))
	for _, l := range found {
		resp = append(resp, FromShoppingList(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReplaceItems handles PUT /api/v1/shopping-lists/{id}/items
func (h *ShoppingListController) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid shopping list id", Code: "invalid_id"})
		return
	}

	var req ReplaceItemsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.lists.ReplaceItems(r.Context(), id, customerID, toDomainItems(req.Items))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromShoppingList(list))
}

// Transition handles POST /api/v1/shopping-lists/{id}/transition
func (h *ShoppingListController) Transition(w http.ResponseWriter, r *http.Request) {
	actor, err := callerActor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid shopping list id", Code: "invalid_id"})
		return
	}

	var req TransitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.lifecycle.TransitionShoppingList(r.Context(), id, actor, shoppinglist.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromShoppingList(list))
}

// Checkout handles POST /api/v1/shopping-lists/{id}/checkout
func (h *ShoppingListController) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid shopping list id", Code: "invalid_id"})
		return
	}

	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "NGN"
	}

	res, err := h.checkout.Execute(r.Context(), checkout.Request{
		ShoppingListID: id,
		CustomerID:     customerID,
		CustomerEmail:  req.CustomerEmail,
		Provider:       req.Provider,
		Currency:       currency,
		DeliveryFee:    floatToKobo(req.DeliveryFee),
		DeliveryAddress: order.DeliveryAddress{
			Latitude:   req.DeliveryAddress.Latitude,
			Longitude:  req.DeliveryAddress.Longitude,
			Address:    req.DeliveryAddress.Address,
			City:       req.DeliveryAddress.City,
			State:      req.DeliveryAddress.State,
			Country:    req.DeliveryAddress.Country,
			Directions: req.DeliveryAddress.Directions,
		},
		CustomerNotes: req.CustomerNotes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, FromCheckout(res))
}
