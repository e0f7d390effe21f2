// SPDX-License-Identifier: Apache-2.0

package domain

type RoomCategory string
type StyleProfile string
type StageKind string

const (
	RoomLivingRoom RoomCategory = "living_room"
	RoomBedroom    RoomCategory = "bedroom"
	RoomDiningRoom RoomCategory = "dining_room"
	RoomHomeOffice RoomCategory = "home_office"
)

const (
	StyleModern       StyleProfile = "modern"
	StyleScandinavian StyleProfile = "scandinavian"
	StyleIndustrial   StyleProfile = "industrial"
	StyleTraditional  StyleProfile = "traditional"
)

const (
	StagePrimaryFurniture StageKind = "primary_furniture"
	StageAccessory        StageKind = "accessory"
	StageWindowTreatment  StageKind = "window_treatment"
	StageWallDecor        StageKind = "wall_decor"
)

// StageOrder is the canonical generation order. A plan never reorders kinds;
// a selection filter may only drop them.
var StageOrder = []StageKind{
	StagePrimaryFurniture,
	StageAccessory,
	StageWindowTreatment,
	StageWallDecor,
}

// StageSelection is a bitmask of stage kinds to retain in a plan.
// The zero value means "all kinds".
type StageSelection uint8

const (
	SelectPrimaryFurniture StageSelection = 1 << iota
	SelectAccessory
	SelectWindowTreatment
	SelectWallDecor

	SelectAll = SelectPrimaryFurniture | SelectAccessory | SelectWindowTreatment | SelectWallDecor
)

func SelectionFor(kind StageKind) StageSelection {
	switch kind {
	case StagePrimaryFurniture:
		return SelectPrimaryFurniture
	case StageAccessory:
		return SelectAccessory
	case StageWindowTreatment:
		return SelectWindowTreatment
	case StageWallDecor:
		return SelectWallDecor
	}
	return 0
}

func (s StageSelection) Includes(kind StageKind) bool {
	if s == 0 {
		return true
	}
	return s&SelectionFor(kind) != 0
}

// StageConfig is one bounded unit of generation work. Instruction is opaque
// to everything downstream of the plan builder.
type StageConfig struct {
	Kind              StageKind `json:"kind"`
	MinItems          int       `json:"min_items"`
	MaxItems          int       `json:"max_items"`
	AllowedCategories []string  `json:"allowed_categories"`
	Instruction       string    `json:"instruction"`
}

// StagingPlan is generated once per run and never regenerated mid-run.
type StagingPlan struct {
	Stages []StageConfig `json:"stages"`
}

// Filter returns a plan containing only the selected stage kinds, preserving
// the relative order of retained stages.
func (p StagingPlan) Filter(sel StageSelection) StagingPlan {
	out := StagingPlan{Stages: make([]StageConfig, 0, len(p.Stages))}
	for _, st := range p.Stages {
		if sel.Includes(st.Kind) {
			out.Stages = append(out.Stages, st)
		}
	}
	return out
}
