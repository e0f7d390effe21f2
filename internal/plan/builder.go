// SPDX-License-Identifier: Apache-2.0

// Package plan turns a room category and a style profile into an ordered
// staging plan: one generation stage per furnishing role, each with item
// budgets, allowed categories, and a rendering instruction. Building a plan
// performs no I/O.
package plan

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/homevue/staging-engine/internal/domain"
)

type Builder struct {
	rng *rand.Rand
}

// NewBuilder returns a plan builder using the given random source for
// example-item sampling. A nil source falls back to a fixed seed, which
// keeps plan text deterministic for tests and local tooling.
func NewBuilder(rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Builder{rng: rng}
}

// Build produces the staging plan for a room/style pair. The stage sequence
// and kinds depend only on the inputs; sampled example text inside
// instructions is the only seed-dependent part. Selection filtering happens
// after generation and never reorders retained stages.
func (b *Builder) Build(room domain.RoomCategory, style domain.StyleProfile, sel domain.StageSelection) (domain.StagingPlan, error) {
	templates, ok := roomCatalogues[room]
	if !ok {
		return domain.StagingPlan{}, fmt.Errorf("%w: %q", domain.ErrUnknownRoomCategory, room)
	}
	profile, ok := styleProfiles[style]
	if !ok {
		return domain.StagingPlan{}, fmt.Errorf("%w: %q", domain.ErrUnknownStyleProfile, style)
	}

	full := domain.StagingPlan{Stages: make([]domain.StageConfig, 0, len(templates))}
	claimed := make(map[string]struct{})

	for _, tmpl := range templates {
		stage := b.buildStage(tmpl, style, profile, room, claimed)
		for _, c := range stage.AllowedCategories {
			claimed[c] = struct{}{}
		}
		full.Stages = append(full.Stages, stage)
	}

	filtered := full.Filter(sel)
	if len(filtered.Stages) == 0 {
		return domain.StagingPlan{}, domain.ErrEmptyPlan
	}
	return filtered, nil
}

// buildStage resolves one catalogue template against a style profile.
// Categories already claimed by an earlier stage are excluded so no
// furnishing role is duplicated across stages. A stage whose category list
// resolves empty is still emitted, with MaxItems forced to zero, so stage
// indexes stay stable for every room/style pair.
func (b *Builder) buildStage(
	tmpl stageTemplate,
	style domain.StyleProfile,
	profile styleProfile,
	room domain.RoomCategory,
	claimed map[string]struct{},
) domain.StageConfig {
	allowed := profile.allowedCategories(tmpl.categories)

	unclaimed := allowed[:0:0]
	for _, c := range allowed {
		if _, taken := claimed[c]; taken {
			continue
		}
		unclaimed = append(unclaimed, c)
	}

	stage := domain.StageConfig{
		Kind:              tmpl.kind,
		MinItems:          tmpl.minItems,
		MaxItems:          tmpl.maxItems,
		AllowedCategories: unclaimed,
	}
	if len(unclaimed) == 0 {
		stage.MinItems = 0
		stage.MaxItems = 0
	}

	stage.Instruction = b.composeInstruction(stage, style, profile, room)
	return stage
}

func (b *Builder) composeInstruction(
	stage domain.StageConfig,
	style domain.StyleProfile,
	profile styleProfile,
	room domain.RoomCategory,
) string {
	var sb strings.Builder

	roomLabel := strings.ReplaceAll(string(room), "_", " ")

	switch stage.Kind {
	case domain.StagePrimaryFurniture:
		fmt.Fprintf(&sb, "Furnish this empty %s with its primary furniture. ", roomLabel)
	case domain.StageAccessory:
		fmt.Fprintf(&sb, "Layer complementary accessories onto the furnished %s. ", roomLabel)
	case domain.StageWindowTreatment:
		fmt.Fprintf(&sb, "Dress the windows of this %s. ", roomLabel)
	case domain.StageWallDecor:
		fmt.Fprintf(&sb, "Decorate the walls of this %s. ", roomLabel)
	}

	if stage.MaxItems == 0 {
		sb.WriteString("Add nothing in this pass; return the room unchanged. ")
	} else {
		fmt.Fprintf(&sb, "Add between %d and %d items. ", stage.MinItems, stage.MaxItems)
		if examples := sampleCategories(b.rng, stage.AllowedCategories, maxExampleCategories); len(examples) > 0 {
			fmt.Fprintf(&sb, "Suitable items include: %s. ", strings.Join(examples, ", "))
		}
	}

	sb.WriteString("Do not repaint or alter walls, floors, ceilings, windows, or architecture. ")

	switch stage.Kind {
	case domain.StagePrimaryFurniture, domain.StageAccessory:
		sb.WriteString("Do not add wall art. Do not add curtains, drapes, or blinds. ")
		sb.WriteString("Keep walkways and doorways clear. ")
	case domain.StageWindowTreatment:
		sb.WriteString("Do not add wall art. ")
	case domain.StageWallDecor:
		sb.WriteString("Do not add curtains, drapes, or blinds. ")
	}

	sb.WriteString(profile.guidanceBlock(style))
	return strings.TrimSpace(sb.String())
}
