// SPDX-License-Identifier: Apache-2.0

package plan

import "math/rand"

// maxExampleCategories bounds how many example items an instruction names.
// Listing every catalogue category makes directives long enough to dilute
// the constraints the provider actually has to honor.
const maxExampleCategories = 3

// sampleCategories picks up to n categories without replacement using a
// partial Fisher-Yates shuffle of a copy. This is the only randomized part
// of plan building; callers inject the rand source so plans are reproducible
// under a fixed seed.
func sampleCategories(rng *rand.Rand, categories []string, n int) []string {
	if n <= 0 || len(categories) == 0 {
		return nil
	}
	if n > len(categories) {
		n = len(categories)
	}

	pool := make([]string, len(categories))
	copy(pool, categories)

	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:n]
}
