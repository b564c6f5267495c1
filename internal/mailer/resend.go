package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"

	"event-checkout/internal/config"
	"event-checkout/internal/models"
)

// ResendMailer sends transactional email through the Resend HTTP API.
type ResendMailer struct {
	config config.ResendConfig
	client *http.Client
	log    *zap.Logger
}

// NewResendMailer creates a mailer bound to cfg.
func NewResendMailer(cfg config.ResendConfig, log *zap.Logger) *ResendMailer {
	return &ResendMailer{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.Named("resend"),
	}
}

type resendEmailRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

type resendErrorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// SendOrderConfirmation renders and sends the receipt for a settled order.
func (m *ResendMailer) SendOrderConfirmation(ctx context.Context, n *models.OrderConfirmation) error {
	html, text, err := renderOrderConfirmation(n)
	if err != nil {
		return err
	}

	return m.send(ctx, resendEmailRequest{
		From:    m.from(),
		To:      []string{n.Email},
		Subject: fmt.Sprintf("Order Confirmation - %s", n.OrderID),
		HTML:    html,
		Text:    text,
		Tags:    []resendTag{{Name: "category", Value: "order_confirmation"}},
	})
}

func (m *ResendMailer) from() string {
	if m.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", m.config.FromName, m.config.FromEmail)
	}
	return m.config.FromEmail
}

func (m *ResendMailer) send(ctx context.Context, request resendEmailRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(m.config.BaseURL, "/")+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr resendErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("resend API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("resend API error (%d)", resp.StatusCode)
	}

	var sent resendEmailResponse
	if err := json.Unmarshal(raw, &sent); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	m.log.Info("email sent",
		zap.String("email_id", sent.ID),
		zap.Strings("to", request.To),
		zap.String("subject", request.Subject),
	)
	return nil
}

// LogMailer writes emails to the log instead of sending them. It stands in
// when no Resend key is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log.Named("mailer")}
}

func (m *LogMailer) SendOrderConfirmation(_ context.Context, n *models.OrderConfirmation) error {
	_, text, err := renderOrderConfirmation(n)
	if err != nil {
		return err
	}
	m.log.Info("order confirmation (not sent)",
		zap.String("order_id", n.OrderID),
		zap.String("to", n.Email),
		zap.String("body", text),
	)
	return nil
}

var (
	orderConfirmationHTML = template.Must(template.New("order_confirmation.html").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Order Confirmation</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4F46E5; color: white; padding: 20px; text-align: center; }
        .highlight { background-color: #EEF2FF; padding: 15px; border-left: 4px solid #4F46E5; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Order Confirmation</h1></div>
        <p>Thank you for your order! Here are your order details:</p>
        <div class="highlight">
            <p><strong>Order Number:</strong> {{.OrderID}}</p>
            <p><strong>Date:</strong> {{.Date}}</p>
            <p><strong>Payment Method:</strong> {{.PaymentMethod}}</p>
            <p><strong>Total Amount:</strong> {{money .Total .Currency}}</p>
        </div>
        <p>Your tickets will be sent to you in a separate email shortly.</p>
    </div>
</body>
</html>`))

	orderConfirmationText = texttemplate.Must(texttemplate.New("order_confirmation.txt").Funcs(texttemplate.FuncMap(templateFuncs)).Parse(`Order Confirmation

Thank you for your order! Here are your order details:

Order Number: {{.OrderID}}
Date: {{.Date}}
Payment Method: {{.PaymentMethod}}
Total Amount: {{money .Total .Currency}}

Your tickets will be sent to you in a separate email shortly.`))

	templateFuncs = template.FuncMap{"money": formatMoney}
)

func renderOrderConfirmation(n *models.OrderConfirmation) (html, text string, err error) {
	var h, t bytes.Buffer
	if err := orderConfirmationHTML.Execute(&h, n); err != nil {
		return "", "", fmt.Errorf("failed to render order confirmation: %w", err)
	}
	if err := orderConfirmationText.Execute(&t, n); err != nil {
		return "", "", fmt.Errorf("failed to render order confirmation: %w", err)
	}
	return h.String(), t.String(), nil
}

// formatMoney renders an amount held in the currency's minor unit.
func formatMoney(minor int64, currency string) string {
	if currency == "" {
		currency = "NGN"
	}
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), minor/100, minor%100)
}
