package httpapi

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/commerce-saga/internal/domain/payment"
)

// PaymentHandler serves the payment service's HTTP surface.
type PaymentHandler struct {
	svc *payment.Service
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(svc *payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Register mounts the payment routes on the mux.
func (h *PaymentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /payments/order/{orderId}", h.paymentByOrder)
}

type paymentResponse struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *PaymentHandler) paymentByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("orderId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	p, err := h.svc.PaymentByOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			writeError(w, http.StatusNotFound, "payment not found for order")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentResponse{
		PaymentID: p.ID.String(),
		OrderID:   p.OrderID.String(),
		Amount:    p.Amount.InexactFloat64(),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
}
