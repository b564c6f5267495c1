package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"event-checkout/internal/models"
	"event-checkout/internal/services"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives payment notifications from Paystack.
type WebhookHandler struct {
	settlement services.SettlementServiceInterface
	log        *zap.Logger
}

func NewWebhookHandler(settlement services.SettlementServiceInterface, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{settlement: settlement, log: log.Named("webhook")}
}

// VerifyPayment handles the gateway callback. The body is passed on byte for
// byte because the signature covers the raw payload.
func (h *WebhookHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.log.Warn("webhook body unreadable", zap.Error(err))
		writeError(w, h.log, models.WrapError(models.KindValidation, "unreadable webhook body", err))
		return
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		signature = r.Header.Get("X-Paystack-Signature")
	}

	outcome, err := h.settlement.HandleWebhook(r.Context(), body, signature)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"outcome": string(outcome)}, "webhook received")
}
