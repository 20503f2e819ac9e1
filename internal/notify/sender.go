package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// TextSender is the external SMS capability. Send fails with a
// *DeliveryError on transport failure; the message record then stays
// unsent and is retried on the next sweep.
type TextSender interface {
	Send(ctx context.Context, body, toNumber string) error
}

type DeliveryError struct {
	ToNumber string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.ToNumber, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// GatewaySender posts messages to an HTTP SMS gateway.
type GatewaySender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewGatewaySender(url, apiKey string) *GatewaySender {
	return &GatewaySender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *GatewaySender) Send(ctx context.Context, body, toNumber string) error {
	payload, err := json.Marshal(map[string]string{
		"message": body,
		"to":      toNumber,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{ToNumber: toNumber, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &DeliveryError{ToNumber: toNumber, Err: fmt.Errorf("gateway status %d", resp.StatusCode)}
	}

	return nil
}

// LogSender logs instead of sending, for deployments without a gateway.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, body, toNumber string) error {
	s.logger.Info("sms (dry run)", "to", toNumber, "body", body)
	return nil
}
