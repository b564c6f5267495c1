package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Webhook event names sent by the gateway.
const (
	EventChargeSuccess = "charge.success"
)

// ChargeStatusSuccess is the inner status of a captured charge.
const ChargeStatusSuccess = "success"

// WebhookEvent is one decoded gateway notification. Each known event has
// its own concrete type.
type WebhookEvent interface {
	EventName() string
}

// ChargeSuccessEvent reports a captured charge.
type ChargeSuccessEvent struct {
	Data ChargeData
}

func (ChargeSuccessEvent) EventName() string { return EventChargeSuccess }

// ChargeData is the charge object inside charge.* events.
type ChargeData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

// PaidTime parses PaidAt; ok is false when the gateway left it out.
func (d ChargeData) PaidTime() (time.Time, bool) {
	return ParseGatewayTime(d.PaidAt)
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseWebhookEvent decodes a raw webhook body into its event type.
// Events the pipeline does not act on return ErrUnknownEvent.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, WrapError(KindValidation, "malformed webhook payload", err)
	}

	switch env.Event {
	case EventChargeSuccess:
		var data ChargeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, WrapError(KindValidation, "malformed charge data", err)
		}
		if data.Reference == "" {
			return nil, fmt.Errorf("%w: missing reference", ErrInvalidInput)
		}
		return ChargeSuccessEvent{Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

var gatewayTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
}

// ParseGatewayTime accepts the timestamp layouts the gateway uses.
func ParseGatewayTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return time.Time{}, false
	}
	for _, layout := range gatewayTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
