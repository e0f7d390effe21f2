// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/homevue/staging-engine/internal/domain"
)

// MemoryStore holds images in process memory. Useful for tests and for the
// blocking single-process mode where no bucket is configured.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Store(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	url := "mem://" + key
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[url] = buf
	return url, nil
}

func (m *MemoryStore) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[url]
	if !ok {
		return nil, fmt.Errorf("%w: image %s", domain.ErrMissingImage, url)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put seeds an image at an exact URL, mirroring how original uploads arrive
// with caller-provided URLs.
func (m *MemoryStore) Put(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[url] = buf
}
