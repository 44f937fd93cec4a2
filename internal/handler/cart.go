package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/cart"
	"github.com/xenking/checkout-gateway/pkg/httpmiddleware"
)

type cartItemJSON struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

type cartJSON struct {
	Items    []cartItemJSON `json:"items"`
	Subtotal float64        `json:"subtotal"`
}

type addCartItemRequest struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

func (req *addCartItemRequest) validate() error {
	v := &validationError{}
	if strings.TrimSpace(req.ProductID) == "" {
		v.add("productId", "productId should not be empty")
	}
	if strings.TrimSpace(req.ProductName) == "" {
		v.add("productName", "productName should not be empty")
	}
	v.quantity("quantity", req.Quantity)
	v.amount("unitPrice", req.UnitPrice)
	return v.err()
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func cartToJSON(c cart.Cart) cartJSON {
	items := make([]cartItemJSON, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemJSON{
			ID:          it.ID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		}
	}
	return cartJSON{Items: items, Subtotal: c.Subtotal}
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	httpmiddleware.WriteJSON(w, r, http.StatusOK, cartToJSON(h.cart.Get()))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.cart.Add(req.ProductID, req.ProductName, req.Quantity, req.UnitPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.metrics.cartMutated(r.Context(), "add")
	zctx.From(r.Context()).Info("Cart item added",
		zap.String("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
	)
	httpmiddleware.WriteJSON(w, r, http.StatusCreated, cartToJSON(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		v := &validationError{}
		v.add("quantity", "quantity must be an integer number")
		writeError(w, r, v)
		return
	}

	c, err := h.cart.Update(pathID(r), *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	op := "update"
	if *req.Quantity <= 0 {
		op = "remove"
	}
	h.metrics.cartMutated(r.Context(), op)
	httpmiddleware.WriteJSON(w, r, http.StatusOK, cartToJSON(c))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart.Remove(pathID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.metrics.cartMutated(r.Context(), "remove")
	httpmiddleware.WriteJSON(w, r, http.StatusOK, cartToJSON(c))
}
