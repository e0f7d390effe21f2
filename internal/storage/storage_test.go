// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
)

func TestObjectURL(t *testing.T) {
	got := ObjectURL("staging-renders", "us-east-1", "runs/abc/stage0.jpg")
	want := "https://staging-renders.s3.us-east-1.amazonaws.com/runs/abc/stage0.jpg"
	if got != want {
		t.Fatalf("ObjectURL = %q, want %q", got, want)
	}
}

func TestS3StoreObjectKey(t *testing.T) {
	s := &S3Store{bucket: "staging-renders", region: "us-east-1"}

	key, ok := s.objectKey("https://staging-renders.s3.us-east-1.amazonaws.com/runs/abc/stage0.jpg")
	if !ok || key != "runs/abc/stage0.jpg" {
		t.Fatalf("expected in-bucket key, got %q (%v)", key, ok)
	}

	if _, ok := s.objectKey("https://cdn.provider.example.com/out/img.jpg"); ok {
		t.Fatal("external URL must not resolve to a bucket key")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	url, err := m.Store(ctx, "runs/r1/stage0.jpg", []byte{1, 2, 3}, "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}

	data, err := m.Fetch(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3 || data[0] != 1 {
		t.Fatalf("unexpected bytes %v", data)
	}

	if _, err := m.Fetch(ctx, "mem://nope"); err == nil {
		t.Fatal("expected missing image error")
	}
}
