// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strings"

	"github.com/homevue/staging-engine/internal/domain"
)

var correctionDirectives = map[domain.Violation]string{
	domain.ViolationWallDecorPresent:       "Remove every piece of wall decor that was added and leave the walls bare.",
	domain.ViolationWindowTreatmentPresent: "Remove any curtains, drapes or blinds that were added and leave the windows bare.",
	domain.ViolationCirculationBlocked:     "Clear the walking paths and keep the open floor area between furniture unobstructed.",
	domain.ViolationColorDrift:             "Keep the wall, floor and ceiling colors exactly as they appear in the input photo.",
	domain.ViolationItemCountOutOfRange:    "Stay strictly within the requested number of added items for this pass.",
}

// CorrectiveInstruction turns a failed attempt's violations into a retry
// instruction: the original directive plus one explicit fix per violation.
// With no violations the instruction is returned unchanged.
func CorrectiveInstruction(base string, violations []domain.Violation) string {
	if len(violations) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString(" Correction:")
	for _, v := range violations {
		directive, ok := correctionDirectives[v]
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(directive)
	}
	return b.String()
}
