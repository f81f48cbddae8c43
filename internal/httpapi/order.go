package httpapi

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-saga/internal/domain/order"
)

// OrderHandler serves the order service's HTTP surface.
type OrderHandler struct {
	svc *order.Service
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Register mounts the order routes on the mux.
func (h *OrderHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.submitOrder)
	mux.HandleFunc("GET /orders/{orderId}", h.getOrder)
	mux.HandleFunc("GET /orders/customer/{customerId}", h.ordersByCustomer)
}

type createOrderItemRequest struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	CustomerID  uuid.UUID                `json:"customerId"`
	Items       []createOrderItemRequest `json:"items"`
	TotalAmount decimal.Decimal          `json:"totalAmount"`
}

type orderItemResponse struct {
	OrderItemID string  `json:"orderItemId"`
	ProductID   string  `json:"productId"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type orderResponse struct {
	OrderID     string              `json:"orderId"`
	CustomerID  string              `json:"customerId"`
	TotalAmount float64             `json:"totalAmount"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Items       []orderItemResponse `json:"items"`
}

func (h *OrderHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "customerId required")
		return
	}

	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}

	o, err := h.svc.SubmitOrder(r.Context(), order.SubmitOrderRequest{
		CustomerID:  req.CustomerID,
		Items:       items,
		TotalAmount: req.TotalAmount,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("orderId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ordersByCustomer maps an empty result to 404 rather than an empty list.
func (h *OrderHandler) ordersByCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("customerId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	orders, err := h.svc.OrdersByCustomer(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if len(orders) == 0 {
		writeError(w, http.StatusNotFound, "no orders found for customer")
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		npErr *order.NegativeUnitPriceError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNegativeTotal),
		errors.As(err, &iqErr),
		errors.As(err, &npErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			OrderItemID: it.ID.String(),
			ProductID:   it.ProductID.String(),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
		}
	}
	return orderResponse{
		OrderID:     o.ID.String(),
		CustomerID:  o.CustomerID.String(),
		TotalAmount: o.TotalAmount.InexactFloat64(),
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       items,
	}
}
