package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSender delivers mail through a JSON provider API: a single POST per
// message, 2xx meaning accepted. Status codes classify the failure the
// same way providers document them: 408/429/5xx are worth retrying,
// any other 4xx means the request itself is bad.
type HTTPSender struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewHTTPSender returns an HTTPSender with a bounded request timeout.
func NewHTTPSender(url, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

type providerSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(providerSendRequest{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return Permanent(fmt.Errorf("encode send request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return Permanent(fmt.Errorf("build send request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("X-Api-Key", s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return Transient(fmt.Errorf("provider returned %d", resp.StatusCode))
	default:
		return Permanent(fmt.Errorf("provider rejected send: %d", resp.StatusCode))
	}
}
