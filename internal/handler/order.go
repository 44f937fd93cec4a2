package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/order"
	"github.com/xenking/checkout-gateway/pkg/httpmiddleware"
)

var postalCodeRe = regexp.MustCompile(`^[A-Za-z0-9\s-]{5,10}$`)

type orderItemJSON struct {
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

type createOrderRequest struct {
	CustomerName  string          `json:"customerName"`
	StreetAddress string          `json:"streetAddress"`
	City          string          `json:"city"`
	State         string          `json:"state"`
	PostalCode    string          `json:"postalCode"`
	Country       string          `json:"country"`
	Items         []orderItemJSON `json:"items"`
}

func (req *createOrderRequest) validate() error {
	v := &validationError{}
	text := func(field, value string, maxLen int) {
		switch {
		case strings.TrimSpace(value) == "":
			v.add(field, field+" should not be empty")
		case utf8.RuneCountInString(value) > maxLen:
			v.add(field, fmt.Sprintf("%s must be shorter than or equal to %d characters", field, maxLen))
		}
	}
	text("customerName", req.CustomerName, 100)
	text("streetAddress", req.StreetAddress, 200)
	text("city", req.City, 100)
	text("state", req.State, 50)
	text("postalCode", req.PostalCode, 20)
	text("country", req.Country, 100)
	if req.PostalCode != "" && !postalCodeRe.MatchString(req.PostalCode) {
		v.add("postalCode", "Postal code must be alphanumeric and between 5-10 characters")
	}

	if req.Items == nil {
		v.add("items", "items must be an array")
	}
	for i, it := range req.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if strings.TrimSpace(it.ProductName) == "" {
			v.add(prefix+"productName", "productName should not be empty")
		}
		v.quantity(prefix+"quantity", it.Quantity)
		v.amount(prefix+"unitPrice", it.UnitPrice)
		v.amount(prefix+"lineTotal", it.LineTotal)
	}
	return v.err()
}

func (req *createOrderRequest) toDomain() order.PlaceOrderRequest {
	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		}
	}
	return order.PlaceOrderRequest{
		CustomerName: req.CustomerName,
		Address: order.Address{
			Street:     req.StreetAddress,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
			Country:    req.Country,
		},
		Items: items,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// orderJSON is the wire form of an order. The reference is exposed as
// orderId, the name the storefront uses.
type orderJSON struct {
	ID               int64           `json:"id"`
	OrderID          string          `json:"orderId"`
	CustomerName     string          `json:"customerName"`
	StreetAddress    string          `json:"streetAddress"`
	City             string          `json:"city"`
	State            string          `json:"state"`
	PostalCode       string          `json:"postalCode"`
	Country          string          `json:"country"`
	Latitude         *float64        `json:"latitude"`
	Longitude        *float64        `json:"longitude"`
	FormattedAddress *string         `json:"formattedAddress"`
	Subtotal         float64         `json:"subtotal"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	Items            []orderItemJSON `json:"items"`
}

func orderToJSON(o *order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemJSON{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
			LineTotal:   it.LineTotal.InexactFloat64(),
		}
	}
	out := orderJSON{
		ID:            o.ID,
		OrderID:       o.Reference,
		CustomerName:  o.CustomerName,
		StreetAddress: o.Address.Street,
		City:          o.Address.City,
		State:         o.Address.State,
		PostalCode:    o.Address.PostalCode,
		Country:       o.Address.Country,
		Subtotal:      o.Subtotal.InexactFloat64(),
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		Items:         items,
	}
	if loc := o.Location; loc != nil {
		out.Latitude = &loc.Latitude
		out.Longitude = &loc.Longitude
		out.FormattedAddress = &loc.FormattedAddress
	}
	return out
}

func pathRef(r *http.Request) string {
	return chi.URLParam(r, "orderReference")
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Creating order",
		zap.String("customer_name", req.CustomerName),
		zap.Int("item_count", len(req.Items)),
		zap.String("city", req.City),
		zap.String("state", req.State),
	)

	o, err := h.orders.PlaceOrder(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.metrics.orderPlaced(r.Context())
	httpmiddleware.WriteJSON(w, r, http.StatusCreated, orderToJSON(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), pathRef(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpmiddleware.WriteJSON(w, r, http.StatusOK, orderToJSON(o))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		v := &validationError{}
		v.add("status", "status should not be empty")
		writeError(w, r, v)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), pathRef(r), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpmiddleware.WriteJSON(w, r, http.StatusOK, orderToJSON(o))
}
