// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"strings"

	"github.com/homevue/staging-engine/internal/domain"
)

// styleProfile carries the guidance block that keeps independently generated
// stages stylistically coherent: a palette to stay inside, materials and
// silhouettes to prefer, and colors that must never appear.
type styleProfile struct {
	palette       []string
	materials     []string
	silhouette    string
	blockedColors []string
	// blockedCategories removes catalogue items that clash with the style.
	blockedCategories []string
}

var styleProfiles = map[domain.StyleProfile]styleProfile{
	domain.StyleModern: {
		palette:       []string{"charcoal", "white", "warm gray", "muted olive"},
		materials:     []string{"matte metal", "walnut", "bouclé", "smoked glass"},
		silhouette:    "low-profile, clean-lined",
		blockedColors: []string{"neon", "primary red", "gold leaf"},
	},
	domain.StyleScandinavian: {
		palette:       []string{"white", "pale oak", "soft beige", "sage"},
		materials:     []string{"light oak", "wool", "linen", "ceramic"},
		silhouette:    "light, tapered-leg, airy",
		blockedColors: []string{"black lacquer", "saturated jewel tones"},
		blockedCategories: []string{
			"gallery wall set", "wall sconce pair",
		},
	},
	domain.StyleIndustrial: {
		palette:       []string{"iron gray", "rust", "cognac leather", "concrete"},
		materials:     []string{"blackened steel", "reclaimed wood", "leather", "exposed brick"},
		silhouette:    "heavy, utilitarian",
		blockedColors: []string{"pastels", "bright white"},
		blockedCategories: []string{
			"sheer curtains", "candles", "candlesticks",
		},
	},
	domain.StyleTraditional: {
		palette:       []string{"cream", "navy", "burgundy", "antique brass"},
		materials:     []string{"polished mahogany", "velvet", "brass", "patterned fabric"},
		silhouette:    "rolled-arm, turned-leg, formal",
		blockedColors: []string{"fluorescent tones"},
	},
}

// KnownStyleProfile reports whether the style has a guidance profile.
func KnownStyleProfile(style domain.StyleProfile) bool {
	_, ok := styleProfiles[style]
	return ok
}

// StyleProfiles lists the supported style profiles in stable order.
func StyleProfiles() []domain.StyleProfile {
	return []domain.StyleProfile{
		domain.StyleModern,
		domain.StyleScandinavian,
		domain.StyleIndustrial,
		domain.StyleTraditional,
	}
}

// guidanceBlock renders the style constraints appended to every stage
// instruction.
func (s styleProfile) guidanceBlock(style domain.StyleProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Style: %s. ", style)
	fmt.Fprintf(&b, "Stay within this palette: %s. ", strings.Join(s.palette, ", "))
	fmt.Fprintf(&b, "Prefer these materials: %s. ", strings.Join(s.materials, ", "))
	fmt.Fprintf(&b, "Silhouette: %s. ", s.silhouette)
	if len(s.blockedColors) > 0 {
		fmt.Fprintf(&b, "Never use: %s.", strings.Join(s.blockedColors, ", "))
	}
	return strings.TrimSpace(b.String())
}

// allowedCategories filters a catalogue category list through the style's
// block list, preserving catalogue order.
func (s styleProfile) allowedCategories(categories []string) []string {
	if len(s.blockedCategories) == 0 {
		out := make([]string, len(categories))
		copy(out, categories)
		return out
	}

	blocked := make(map[string]struct{}, len(s.blockedCategories))
	for _, c := range s.blockedCategories {
		blocked[c] = struct{}{}
	}

	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if _, skip := blocked[c]; skip {
			continue
		}
		out = append(out, c)
	}
	return out
}
