// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homevue/staging-engine/internal/domain"
)

func testRequest() DispatchRequest {
	return DispatchRequest{
		Image:       domain.ImageRef{URL: "https://img/room.jpg", Width: 1024, Height: 768},
		ImageData:   []byte("raw-jpeg-bytes"),
		MIMEType:    "image/jpeg",
		Instruction: "furnish the room",
	}
}

func TestDispatchAsyncJob(t *testing.T) {
	var gotBody editRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/edits" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(editResponse{JobID: "job-42"})
	}))
	defer srv.Close()

	c := NewRestClient(RestClientOpts{BaseURL: srv.URL, APIKey: "key-1"})

	out, err := c.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if out.Handle != "job-42" {
		t.Fatalf("expected handle job-42, got %q", out.Handle)
	}
	if out.Immediate != nil {
		t.Fatal("expected async outcome")
	}

	if gotBody.Instruction != "furnish the room" {
		t.Fatalf("instruction not forwarded: %q", gotBody.Instruction)
	}
	if gotBody.Output.Width != 1024 || gotBody.Output.Height != 768 {
		t.Fatalf("unexpected output dims %dx%d", gotBody.Output.Width, gotBody.Output.Height)
	}
	decoded, err := base64.StdEncoding.DecodeString(gotBody.Image.Data)
	if err != nil || string(decoded) != "raw-jpeg-bytes" {
		t.Fatalf("image payload mangled: %v %q", err, decoded)
	}
}

func TestDispatchImmediateResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(editResponse{
			JobID: "job-7",
			Image: &inlineImage{
				MIMEType: "image/png",
				Data:     base64.StdEncoding.EncodeToString([]byte("rendered")),
			},
		})
	}))
	defer srv.Close()

	c := NewRestClient(RestClientOpts{BaseURL: srv.URL})

	out, err := c.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if out.Handle != "job-7" {
		t.Fatalf("expected handle job-7, got %q", out.Handle)
	}
	if out.Immediate == nil || string(out.Immediate.Data) != "rendered" {
		t.Fatalf("expected immediate result, got %+v", out.Immediate)
	}
	if out.Immediate.MIMEType != "image/png" {
		t.Fatalf("expected png result, got %q", out.Immediate.MIMEType)
	}
}

func TestDispatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRestClient(RestClientOpts{BaseURL: srv.URL})

	if _, err := c.Dispatch(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestDispatchProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(editResponse{
			Error: &apiError{Code: 400, Message: "image too large"},
		})
	}))
	defer srv.Close()

	c := NewRestClient(RestClientOpts{BaseURL: srv.URL})

	_, err := c.Dispatch(context.Background(), testRequest())
	if err == nil || !strings.Contains(err.Error(), "image too large") {
		t.Fatalf("expected rejection error, got %v", err)
	}
}

func TestPollStates(t *testing.T) {
	cases := []struct {
		name      string
		response  jobResponse
		wantState JobState
		wantErr   bool
	}{
		{name: "pending", response: jobResponse{State: "pending"}, wantState: JobPending},
		{name: "running maps to pending", response: jobResponse{State: "running"}, wantState: JobPending},
		{name: "succeeded", response: jobResponse{State: "succeeded", ResultURL: "https://cdn/img.jpg"}, wantState: JobSucceeded},
		{name: "failed", response: jobResponse{State: "failed", Reason: "nsfw filter"}, wantState: JobFailed},
		{name: "succeeded without result", response: jobResponse{State: "succeeded"}, wantErr: true},
		{name: "unknown state", response: jobResponse{State: "paused"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/jobs/job-9" {
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tc.response)
			}))
			defer srv.Close()

			c := NewRestClient(RestClientOpts{BaseURL: srv.URL})
			status, err := c.Poll(context.Background(), "job-9")
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("poll failed: %v", err)
			}
			if status.State != tc.wantState {
				t.Fatalf("expected state %s, got %s", tc.wantState, status.State)
			}
			if tc.wantState == JobSucceeded && status.Result.Ref != "https://cdn/img.jpg" {
				t.Fatalf("expected result ref, got %+v", status.Result)
			}
			if tc.wantState == JobFailed && status.Reason != "nsfw filter" {
				t.Fatalf("expected failure reason, got %q", status.Reason)
			}
		})
	}
}
