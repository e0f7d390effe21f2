// SPDX-License-Identifier: Apache-2.0

// Package storage persists generated images and resolves image URLs to
// bytes. The engine treats images as opaque blobs behind stable URLs and
// never looks past this interface.
package storage

import "context"

type ImageStore interface {
	// Store writes image bytes under the given key and returns a stable,
	// retrievable URL.
	Store(ctx context.Context, key string, data []byte, mimeType string) (string, error)
	// Fetch resolves a URL (our own or a provider result reference) to
	// image bytes.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
