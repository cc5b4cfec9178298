package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/service"
)

const (
	signatureHeader       = "X-Signature"
	eventCheckoutComplete = "checkout.completed"
	maxWebhookBody        = 1 << 20
)

// PaymentEvent is the payment provider's webhook body
type PaymentEvent struct {
	Event string          `json:"event"`
	Data  CheckoutPayload `json:"data"`
}

// CheckoutPayload is the data of a checkout.completed event
type CheckoutPayload struct {
	UserID     int64  `json:"user_id"`
	Plan       string `json:"plan"`
	Provider   string `json:"provider"`
	CustomerID string `json:"customer_id"`
}

// SignPayload returns the hex HMAC-SHA256 of body, as sent in X-Signature
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, header string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	got, err := hex.DecodeString(header)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// handlePaymentWebhook applies checkout.completed events. Other event types
// are acknowledged and ignored so the provider does not retry them.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.config.WebhookSecret == "" {
		s.countWebhook("disabled")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "payment webhook is not configured", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.countWebhook("invalid")
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "failed to read body", nil)
		return
	}
	defer r.Body.Close()

	if !validSignature(s.config.WebhookSecret, body, r.Header.Get(signatureHeader)) {
		s.countWebhook("bad_signature")
		s.logger.WithField("remoteAddr", r.RemoteAddr).Warn("Payment webhook with invalid signature")
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid signature", nil)
		return
	}

	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.countWebhook("invalid")
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid JSON body", nil)
		return
	}

	if event.Event != eventCheckoutComplete {
		s.countWebhook("ignored")
		s.logger.WithField("event", event.Event).Debug("Ignoring payment event")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err = s.deps.Checkout.ApplyCheckout(r.Context(), service.CheckoutCompleted{
		UserID:     event.Data.UserID,
		Plan:       event.Data.Plan,
		Provider:   event.Data.Provider,
		CustomerID: event.Data.CustomerID,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidPlan) || errors.Is(err, apperrors.ErrInvalidInput) {
			s.countWebhook("invalid")
		} else {
			s.countWebhook("error")
			s.logger.WithError(err).WithField("userId", event.Data.UserID).Error("Failed to apply checkout")
		}
		respondServiceError(w, err)
		return
	}

	s.countWebhook("applied")
	respondJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) countWebhook(result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.WebhookEvents.WithLabelValues(result).Inc()
	}
}
