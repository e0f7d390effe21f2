// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RestClient drives a render API over plain HTTP/JSON: POST an edit with the
// inline source image, get either the rendered image back or a job id to
// poll. The SDK-free client keeps the wire shapes visible and testable.
type RestClient struct {
	baseURL     string
	apiKey      string
	constraints SizeConstraints
	httpClient  *http.Client
	logger      *slog.Logger
}

type RestClientOpts struct {
	BaseURL     string
	APIKey      string
	Constraints SizeConstraints
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func NewRestClient(opts RestClientOpts) *RestClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Rendering regularly takes tens of seconds.
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	constraints := opts.Constraints
	if constraints.Granularity == 0 {
		constraints = DefaultSizeConstraints
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RestClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		constraints: constraints,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// --- wire shapes ---

type editRequest struct {
	Instruction string       `json:"instruction"`
	Image       inlineImage  `json:"image"`
	Output      outputParams `json:"output"`
}

type inlineImage struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64 encoded
}

type outputParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type editResponse struct {
	JobID string       `json:"job_id,omitempty"`
	Image *inlineImage `json:"image,omitempty"`
	Error *apiError    `json:"error,omitempty"`
}

type jobResponse struct {
	State     string `json:"state"`
	ResultURL string `json:"result_url,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RestClient) Dispatch(ctx context.Context, req DispatchRequest) (DispatchOutcome, error) {
	width, height := NormalizeSize(req.Image.Width, req.Image.Height, c.constraints)

	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	body, err := json.Marshal(editRequest{
		Instruction: req.Instruction,
		Image: inlineImage{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(req.ImageData),
		},
		Output: outputParams{Width: width, Height: height},
	})
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("marshal edit request: %w", err)
	}

	c.logger.Debug("dispatching render job",
		"image_bytes", len(req.ImageData),
		"width", width,
		"height", height,
	)

	var parsed editResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/edits", body, &parsed); err != nil {
		return DispatchOutcome{}, err
	}
	if parsed.Error != nil {
		return DispatchOutcome{}, fmt.Errorf("provider rejected edit: %d %s", parsed.Error.Code, parsed.Error.Message)
	}

	if parsed.Image != nil {
		data, err := base64.StdEncoding.DecodeString(parsed.Image.Data)
		if err != nil {
			return DispatchOutcome{}, fmt.Errorf("decode inline result: %w", err)
		}
		handle := parsed.JobID
		if handle == "" {
			handle = fmt.Sprintf("inline-%d", time.Now().UnixNano())
		}
		return DispatchOutcome{
			Handle: handle,
			Immediate: &Result{
				Data:     data,
				MIMEType: parsed.Image.MIMEType,
			},
		}, nil
	}

	if parsed.JobID == "" {
		return DispatchOutcome{}, fmt.Errorf("provider response carried neither image nor job id")
	}
	return DispatchOutcome{Handle: parsed.JobID}, nil
}

func (c *RestClient) Poll(ctx context.Context, handle string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+handle, nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("build poll request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobStatus{}, fmt.Errorf("poll job %s: %w", handle, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return JobStatus{}, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("poll job %s: status %d", handle, resp.StatusCode)
	}

	var parsed jobResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return JobStatus{}, fmt.Errorf("decode poll response: %w", err)
	}

	switch parsed.State {
	case "pending", "running":
		return JobStatus{State: JobPending}, nil
	case "succeeded":
		if parsed.ResultURL == "" {
			return JobStatus{}, fmt.Errorf("job %s succeeded without result url", handle)
		}
		return JobStatus{State: JobSucceeded, Result: &Result{Ref: parsed.ResultURL}}, nil
	case "failed":
		return JobStatus{State: JobFailed, Reason: parsed.Reason}, nil
	default:
		return JobStatus{}, fmt.Errorf("job %s reported unknown state %q", handle, parsed.State)
	}
}

func (c *RestClient) postJSON(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, truncate(string(raw), 200))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *RestClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
