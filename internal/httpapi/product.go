package httpapi

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/commerce-saga/internal/domain/product"
)

// ProductHandler serves the product service's HTTP surface.
type ProductHandler struct {
	svc *product.Service
}

// NewProductHandler creates a ProductHandler.
func NewProductHandler(svc *product.Service) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// Register mounts the product routes on the mux.
func (h *ProductHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /products", h.createProduct)
	mux.HandleFunc("GET /products/{productId}", h.getProduct)
	mux.HandleFunc("PUT /products/{productId}/stock", h.updateStock)
}

type createProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type updateStockRequest struct {
	Stock int `json:"stock"`
}

type productResponse struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *ProductHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.svc.CreateProduct(r.Context(), product.CreateProductRequest{
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		h.writeProductError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *ProductHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("productId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeProductError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) updateStock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("productId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req updateStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.svc.UpdateStock(r.Context(), id, req.Stock)
	if err != nil {
		h.writeProductError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) writeProductError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, product.ErrEmptyName),
		errors.Is(err, product.ErrNegativePrice),
		errors.Is(err, product.ErrNegativeStock):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ProductID: p.ID.String(),
		Name:      p.Name,
		Price:     p.Price.InexactFloat64(),
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
