// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homevue/staging-engine/internal/domain"
	"github.com/homevue/staging-engine/internal/engine"
	"github.com/homevue/staging-engine/internal/metrics"
	"github.com/homevue/staging-engine/internal/provider"
)

const headerSignature = "X-Signature"

type createRunRequest struct {
	ImageURL     string   `json:"image_url"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	RoomCategory string   `json:"room_category"`
	StyleProfile string   `json:"style_profile"`
	StageKinds   []string `json:"stage_kinds"`
	WebhookURL   string   `json:"webhook_url"`
}

type providerCallbackRequest struct {
	JobHandle string `json:"job_handle"`
	Status    string `json:"status"`
	ResultRef string `json:"result_ref"`
	Reason    string `json:"reason"`
}

type Deps struct {
	Stager        Stager
	Health        HealthChecker
	Logger        *slog.Logger
	WebhookSecret string
	// RunsPerMinute caps run creation per client address. Zero disables
	// the limiter.
	RunsPerMinute int
	Version       string
	Commit        string
	BuildDate     string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Handle("/metrics", promhttp.Handler())

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- START RUN ----------------

	limitRuns := rateLimitMiddleware(newInMemoryRateLimiter(), deps.RunsPerMinute)

	r.With(limitRuns).Post("/runs", func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeCreateRunRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		selection, err := selectionFromKinds(reqBody.StageKinds)
		if err != nil {
			http.Error(w, "unknown stage kind", http.StatusBadRequest)
			return
		}

		proj, err := deps.Stager.StartRun(r.Context(), engine.StartParams{
			RoomCategory: domain.RoomCategory(reqBody.RoomCategory),
			StyleProfile: domain.StyleProfile(reqBody.StyleProfile),
			Selection:    selection,
			Image: domain.ImageRef{
				URL:    reqBody.ImageURL,
				Width:  reqBody.Width,
				Height: reqBody.Height,
			},
			WebhookURL: reqBody.WebhookURL,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrMissingImage),
				errors.Is(err, domain.ErrUnknownRoomCategory),
				errors.Is(err, domain.ErrUnknownStyleProfile),
				errors.Is(err, domain.ErrEmptyPlan):
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("start run failed", "error", err)
			http.Error(w, "failed to start run", http.StatusInternalServerError)
			return
		}

		logger.Info("run started via API", "run_id", proj.ID, "status", proj.Status)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": proj.ID.String(),
			"status": string(proj.Status),
		})
	})

	// ---------------- GET RUN ----------------

	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid run ID", http.StatusBadRequest)
			return
		}

		proj, err := deps.Stager.GetRunStatus(r.Context(), runID)
		if err != nil {
			if errors.Is(err, domain.ErrRunNotFound) {
				logger.Warn("run not found", "run_id", runID)
				http.Error(w, "run not found", http.StatusNotFound)
				return
			}
			logger.Error("get run failed", "run_id", runID, "error", err)
			http.Error(w, "failed to get run", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, proj)
	})

	// ---------------- PROVIDER CALLBACK ----------------

	r.Post("/provider/callback", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if !engine.VerifySignature(deps.WebhookSecret, body, r.Header.Get(headerSignature)) {
			logger.Warn("callback signature rejected")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		ev, err := decodeProviderCallback(body)
		if err != nil {
			http.Error(w, "invalid callback body", http.StatusBadRequest)
			return
		}

		if err := deps.Stager.HandleProviderEvent(r.Context(), ev); err != nil {
			if errors.Is(err, domain.ErrUnknownJobHandle) {
				logger.Warn("callback for unknown job handle", "handle", ev.Handle)
				http.Error(w, "unknown job handle", http.StatusNotFound)
				return
			}
			logger.Error("apply provider callback failed", "handle", ev.Handle, "error", err)
			http.Error(w, "failed to apply callback", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeCreateRunRequest(r *http.Request) (createRunRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return createRunRequest{}, errors.New("empty request body")
	}

	var req createRunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return createRunRequest{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return createRunRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	if req.WebhookURL == "" {
		return req, nil
	}

	parsed, err := url.Parse(req.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return createRunRequest{}, errors.New("invalid webhook_url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return createRunRequest{}, errors.New("unsupported webhook_url scheme")
	}

	return req, nil
}

func decodeProviderCallback(body []byte) (engine.ProviderEvent, error) {
	var req providerCallbackRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return engine.ProviderEvent{}, err
	}

	req.JobHandle = strings.TrimSpace(req.JobHandle)
	if req.JobHandle == "" {
		return engine.ProviderEvent{}, errors.New("missing job_handle")
	}

	var state provider.JobState
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "pending", "running":
		state = provider.JobPending
	case "succeeded":
		state = provider.JobSucceeded
	case "failed":
		state = provider.JobFailed
	default:
		return engine.ProviderEvent{}, errors.New("unknown callback status")
	}

	ev := engine.ProviderEvent{
		Handle: req.JobHandle,
		State:  state,
		Reason: req.Reason,
	}
	if state == provider.JobSucceeded {
		if strings.TrimSpace(req.ResultRef) == "" {
			return engine.ProviderEvent{}, errors.New("succeeded callback missing result_ref")
		}
		ev.Result = &provider.Result{Ref: req.ResultRef}
	}
	return ev, nil
}

func selectionFromKinds(kinds []string) (domain.StageSelection, error) {
	var sel domain.StageSelection
	for _, raw := range kinds {
		bit := domain.SelectionFor(domain.StageKind(strings.TrimSpace(raw)))
		if bit == 0 {
			return 0, errors.New("unknown stage kind " + raw)
		}
		sel |= bit
	}
	return sel, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
