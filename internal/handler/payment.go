package handler

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/checkout-gateway/internal/domain/payment"
	"github.com/xenking/checkout-gateway/pkg/httpmiddleware"
)

var (
	cardNumberRe = regexp.MustCompile(`^\d{13,19}$`)
	expiryRe     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvRe        = regexp.MustCompile(`^\d{3,4}$`)
)

type processPaymentRequest struct {
	CardNumber     string `json:"cardNumber"`
	Expiry         string `json:"expiry"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
}

func (req *processPaymentRequest) validate() error {
	v := &validationError{}
	if !cardNumberRe.MatchString(payment.StripSpaces(req.CardNumber)) {
		v.add("cardNumber", "Card number must be 13-19 digits")
	}
	if !expiryRe.MatchString(req.Expiry) {
		v.add("expiry", "Expiry date must be in MM/YY format")
	}
	if !cvvRe.MatchString(req.CVV) {
		v.add("cvv", "CVV must be 3-4 digits")
	}
	if strings.TrimSpace(req.CardholderName) == "" {
		v.add("cardholderName", "cardholderName should not be empty")
	}
	return v.err()
}

type paymentResultJSON struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

func paymentOutcome(res *payment.Result) string {
	switch {
	case res.Success:
		return "approved"
	case res.Message == payment.MessageDeclined:
		return "declined"
	default:
		return "failed"
	}
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	settle, ok := h.acquirePaymentSlot(w, r)
	if !ok {
		return
	}
	res, err := h.payments.Process(r.Context(), payment.Attempt{
		CardNumber:     req.CardNumber,
		Expiry:         req.Expiry,
		CVV:            req.CVV,
		CardholderName: req.CardholderName,
	})
	if err != nil {
		settle(false)
		writeError(w, r, err)
		return
	}
	settle(!res.Success)

	outcome := paymentOutcome(res)
	h.metrics.paymentProcessed(r.Context(), outcome)
	zctx.From(r.Context()).Info("Payment processed",
		zap.String("outcome", outcome),
		zap.String("transaction_id", res.TransactionID),
	)
	httpmiddleware.WriteJSON(w, r, http.StatusOK, paymentResultJSON{
		Success:       res.Success,
		Message:       res.Message,
		TransactionID: res.TransactionID,
	})
}

// acquirePaymentSlot reserves a payment attempt for the client. When the
// client has exhausted its failures it writes 429 and returns false.
func (h *Handler) acquirePaymentSlot(w http.ResponseWriter, r *http.Request) (settle func(failed bool), ok bool) {
	if h.limiter == nil {
		return func(bool) {}, true
	}
	client := httpmiddleware.ClientIP(r)
	settle, retryAfter, ok := h.limiter.Acquire(client)
	if ok {
		return settle, true
	}

	h.metrics.paymentProcessed(r.Context(), "blocked")
	zctx.From(r.Context()).Warn("Payment attempts exhausted",
		zap.String("client", client),
		zap.Duration("retry_after", retryAfter),
	)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	httpmiddleware.WriteError(w, r, http.StatusTooManyRequests,
		"Too many unsuccessful payment attempts, please try again later")
	return nil, false
}
