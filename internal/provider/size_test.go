// SPDX-License-Identifier: Apache-2.0

package provider

import "testing"

func TestNormalizeSize(t *testing.T) {
	c := DefaultSizeConstraints

	cases := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "already conforming", w: 1024, h: 768, wantW: 1024, wantH: 768},
		{name: "rounds to granularity", w: 1000, h: 750, wantW: 1024, wantH: 768},
		{name: "scales down oversized", w: 4096, h: 3072, wantW: 2048, wantH: 1536},
		{name: "scales up undersized", w: 300, h: 200, wantW: 384, wantH: 256},
		{name: "portrait preserved", w: 1536, h: 2048, wantW: 1536, wantH: 2048},
		{name: "extreme aspect clamps long side", w: 10000, h: 200, wantW: 2048, wantH: 256},
		{name: "garbage input gets min square", w: 0, h: -5, wantW: 256, wantH: 256},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotW, gotH := NormalizeSize(tc.w, tc.h, c)
			if gotW != tc.wantW || gotH != tc.wantH {
				t.Fatalf("NormalizeSize(%d, %d) = (%d, %d), want (%d, %d)",
					tc.w, tc.h, gotW, gotH, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestNormalizeSizeAlwaysInBounds(t *testing.T) {
	c := DefaultSizeConstraints

	for _, dims := range [][2]int{
		{1, 1}, {131, 977}, {2048, 2048}, {9999, 10001}, {640, 480}, {257, 2047},
	} {
		w, h := NormalizeSize(dims[0], dims[1], c)
		for _, side := range []int{w, h} {
			if side < c.MinSide || side > c.MaxSide {
				t.Fatalf("NormalizeSize(%d, %d): side %d out of bounds", dims[0], dims[1], side)
			}
			if side%c.Granularity != 0 {
				t.Fatalf("NormalizeSize(%d, %d): side %d not a granularity multiple", dims[0], dims[1], side)
			}
		}
	}
}
