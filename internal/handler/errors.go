package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/cart"
	"github.com/xenking/checkout-gateway/internal/domain/money"
	"github.com/xenking/checkout-gateway/internal/domain/order"
	"github.com/xenking/checkout-gateway/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

// validationError collects field-level problems of a request body.
type validationError struct {
	fields []httpmiddleware.FieldError
}

func (e *validationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.fields))
}

func (e *validationError) add(field, message string) {
	e.fields = append(e.fields, httpmiddleware.FieldError{Field: field, Message: message})
}

// quantity checks q against the INT column orders are stored in.
func (e *validationError) quantity(field string, q int) {
	switch {
	case q < 1:
		e.add(field, field+" must not be less than 1")
	case q > money.MaxQuantity:
		e.add(field, fmt.Sprintf("%s must not be greater than %d", field, money.MaxQuantity))
	}
}

// amount checks x against the NUMERIC(10, 2) columns orders are stored in.
func (e *validationError) amount(field string, x float64) {
	switch {
	case x < 0:
		e.add(field, field+" must not be less than 0")
	case !money.ValidAmount(x):
		e.add(field, fmt.Sprintf("%s must not be greater than %.2f", field, money.MaxAmount))
	}
}

// err returns nil when no field failed.
func (e *validationError) err() error {
	if len(e.fields) == 0 {
		return nil
	}
	return e
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Wrap(errInvalidBody, "empty body")
		}
		return errors.Wrapf(errInvalidBody, "%v", err)
	}
	return nil
}

// writeError maps err to an HTTP status and writes the error envelope.
// Server errors are logged with a stack trace and their message is hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	var (
		vErr    *validationError
		itemErr *order.InvalidItemError
	)
	switch {
	case errors.As(err, &vErr):
		lg.Warn("Validation failed", zap.Any("errors", vErr.fields))
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "Validation failed", vErr.fields...)
	case errors.As(err, &itemErr):
		field := fmt.Sprintf("items[%d]", itemErr.Index)
		lg.Warn("Invalid order item", zap.Error(err))
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "Validation failed",
			httpmiddleware.FieldError{Field: field, Message: itemErr.Reason})
	case errors.Is(err, errInvalidBody):
		lg.Warn("Invalid request body", zap.Error(err))
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, "Invalid request body")
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrSubtotalTooLarge),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidPrice),
		errors.Is(err, cart.ErrTotalTooLarge),
		errors.Is(err, cart.ErrMissingProduct):
		lg.Warn("Bad request", zap.Error(err))
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, order.ErrNotFound):
		lg.Warn("Order not found", zap.Error(err))
		httpmiddleware.WriteError(w, r, http.StatusNotFound,
			fmt.Sprintf("Order with orderId %s not found", pathRef(r)))
	case errors.Is(err, cart.ErrItemNotFound):
		lg.Warn("Cart item not found", zap.Error(err))
		httpmiddleware.WriteError(w, r, http.StatusNotFound,
			fmt.Sprintf("Cart item %s not found", pathID(r)))
	default:
		lg.Error("Request failed", zap.Error(err), zap.Stack("stack"))
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// rootMessage returns the message of the innermost sentinel error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
