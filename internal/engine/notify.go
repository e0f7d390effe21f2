// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homevue/staging-engine/internal/domain"
)

const (
	notifyRetryAttempts = 3
	notifyRetryBase     = 300 * time.Millisecond
	notifyHeaderSig     = "X-Signature"
)

// TerminalNotice is what gets pushed to a caller's webhook when a run
// reaches completed or failed. URL is delivery routing, not payload.
type TerminalNotice struct {
	RunID        uuid.UUID        `json:"run_id"`
	Status       domain.RunStatus `json:"status"`
	FinalImage   *domain.ImageRef `json:"final_image,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	FinishedAt   time.Time        `json:"finished_at"`

	URL string `json:"-"`
}

// Notifier delivers terminal notices over HTTP with a small bounded retry.
// Delivery is best effort; the run's stored state never depends on it.
type Notifier struct {
	httpClient *http.Client
	secret     string
	logger     *slog.Logger
}

func NewNotifier(secret string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		secret:     secret,
		logger:     logger,
	}
}

func (n *Notifier) Deliver(ctx context.Context, notice TerminalNotice) {
	url := strings.TrimSpace(notice.URL)
	if url == "" || n.httpClient == nil {
		return
	}

	body, err := json.Marshal(notice)
	if err != nil {
		n.logger.Error("notice payload marshal failed",
			"run_id", notice.RunID,
			"status", notice.Status,
			"error", err,
		)
		return
	}

	signature := SignPayload(n.secret, body)

	var lastErr error
	for attempt := 1; attempt <= notifyRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			n.logger.Error("notice request build failed",
				"run_id", notice.RunID,
				"status", notice.Status,
				"attempt", attempt,
				"error", err,
			)
			break
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(notifyHeaderSig, signature)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("notice delivery failure",
				"run_id", notice.RunID,
				"status", notice.Status,
				"attempt", attempt,
				"error", err,
			)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				n.logger.Info("notice delivered",
					"run_id", notice.RunID,
					"status", notice.Status,
					"attempt", attempt,
					"response_status", resp.StatusCode,
				)
				return
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			n.logger.Warn("notice delivery failure",
				"run_id", notice.RunID,
				"status", notice.Status,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
		}

		if attempt < notifyRetryAttempts {
			wait := notifyRetryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				n.logger.Warn("notice delivery canceled before retry",
					"run_id", notice.RunID,
					"status", notice.Status,
					"attempt", attempt,
					"error", ctx.Err(),
				)
				return
			case <-timer.C:
			}
		}
	}

	if lastErr != nil {
		n.logger.Error("notice delivery retries exhausted",
			"run_id", notice.RunID,
			"status", notice.Status,
			"error", lastErr,
		)
	}
}

// SignPayload computes the hex HMAC-SHA256 signature for an outbound body.
// An empty secret disables signing.
func SignPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound body against its X-Signature header
// value. An empty secret skips verification.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if strings.TrimSpace(secret) == "" {
		return true
	}
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
