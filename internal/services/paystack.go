package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"event-checkout/internal/config"
	"event-checkout/internal/models"
)

// InitializeRequest opens a hosted payment session.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"` // minor units
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeResult is where to send the buyer and how to find the
// transaction again.
type InitializeResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// Verification is the gateway's view of a transaction.
type Verification struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

// Successful reports whether the gateway captured the charge.
func (v *Verification) Successful() bool {
	return v.Status == models.ChargeStatusSuccess
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PaystackService talks to the Paystack transaction API.
type PaystackService struct {
	config  config.PaystackConfig
	client  *http.Client
	baseURL string
	log     *zap.Logger
}

// NewPaystackService creates a new Paystack client. Every call is bounded
// by config.Timeout.
func NewPaystackService(cfg config.PaystackConfig, log *zap.Logger) *PaystackService {
	return &PaystackService{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log.Named("paystack"),
	}
}

// InitializeTransaction creates a transaction and returns its hosted
// checkout URL.
func (s *PaystackService) InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResult, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = s.config.CallbackURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	var result InitializeResult
	if err := s.do(ctx, http.MethodPost, "/transaction/initialize", body, &result); err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	if result.Reference == "" || result.AuthorizationURL == "" {
		return nil, models.NewError(models.KindExternalService, "initialize transaction: incomplete gateway response")
	}

	s.log.Debug("transaction initialized",
		zap.String("reference", result.Reference),
		zap.Int64("amount", req.Amount))

	return &result, nil
}

// VerifyTransaction fetches the current state of a transaction. A reference
// the gateway has never seen yields models.ErrGatewayNotFound.
func (s *PaystackService) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	var v Verification
	if err := s.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &v); err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", reference, err)
	}

	s.log.Debug("transaction verified",
		zap.String("reference", reference),
		zap.String("status", v.Status))

	return &v, nil
}

func (s *PaystackService) do(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return models.WrapError(models.KindExternalService, "gateway request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.WrapError(models.KindExternalService, "failed to read gateway response", err)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.WrapError(models.KindExternalService,
			fmt.Sprintf("unexpected gateway response (status %d)", resp.StatusCode), err)
	}

	if resp.StatusCode != http.StatusOK || !env.Status {
		return s.apiError(resp.StatusCode, env.Message)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return models.WrapError(models.KindExternalService, "failed to decode gateway data", err)
	}
	return nil
}

// apiError maps a Paystack failure onto the error taxonomy.
func (s *PaystackService) apiError(statusCode int, message string) error {
	if statusCode == http.StatusNotFound || strings.Contains(strings.ToLower(message), "reference not found") {
		return fmt.Errorf("%w: %s", models.ErrGatewayNotFound, message)
	}
	switch statusCode {
	case http.StatusUnauthorized:
		return models.NewError(models.KindExternalService, "unauthorized: check API keys - "+message)
	default:
		return models.NewError(models.KindExternalService, fmt.Sprintf("gateway error (status %d): %s", statusCode, message))
	}
}

// VerifyWebhookSignature checks a hex HMAC-SHA512 of payload under secret
// in constant time.
func VerifyWebhookSignature(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := SignWebhookPayload(secret, payload)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// SignWebhookPayload returns the signature the gateway would send for payload.
func SignWebhookPayload(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaidTime parses PaidAt.
func (v *Verification) PaidTime() (time.Time, bool) {
	return models.ParseGatewayTime(v.PaidAt)
}
