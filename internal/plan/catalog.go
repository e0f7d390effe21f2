// SPDX-License-Identifier: Apache-2.0

package plan

import "github.com/homevue/staging-engine/internal/domain"

// stageTemplate is one row of the per-room furnishing catalogue: the item
// budget and the item categories a stage of this kind may introduce.
type stageTemplate struct {
	kind       domain.StageKind
	minItems   int
	maxItems   int
	categories []string
}

// roomCatalogue lists stage templates in canonical generation order. Every
// room carries all four kinds; a selection filter is the only way to drop one.
var roomCatalogues = map[domain.RoomCategory][]stageTemplate{
	domain.RoomLivingRoom: {
		{
			kind:     domain.StagePrimaryFurniture,
			minItems: 3, maxItems: 6,
			categories: []string{
				"sofa", "loveseat", "armchair", "coffee table", "side table",
				"media console", "area rug", "floor lamp", "bookshelf",
			},
		},
		{
			kind:     domain.StageAccessory,
			minItems: 2, maxItems: 6,
			categories: []string{
				"throw pillows", "throw blanket", "potted plant", "vase",
				"stack of books", "decorative tray", "table lamp", "candles",
			},
		},
		{
			kind:     domain.StageWindowTreatment,
			minItems: 1, maxItems: 3,
			categories: []string{
				"floor-length curtains", "sheer curtains", "roman shades",
				"curtain rod",
			},
		},
		{
			kind:     domain.StageWallDecor,
			minItems: 1, maxItems: 4,
			categories: []string{
				"framed abstract art", "gallery wall set", "round mirror",
				"floating shelf", "wall clock",
			},
		},
	},
	domain.RoomBedroom: {
		{
			kind:     domain.StagePrimaryFurniture,
			minItems: 3, maxItems: 5,
			categories: []string{
				"queen bed with headboard", "nightstand", "dresser", "bench",
				"area rug", "accent chair",
			},
		},
		{
			kind:     domain.StageAccessory,
			minItems: 2, maxItems: 5,
			categories: []string{
				"bedding set", "throw pillows", "table lamp", "potted plant",
				"stack of books", "decorative bowl",
			},
		},
		{
			kind:     domain.StageWindowTreatment,
			minItems: 1, maxItems: 2,
			categories: []string{
				"blackout curtains", "sheer curtains", "roman shades",
			},
		},
		{
			kind:     domain.StageWallDecor,
			minItems: 1, maxItems: 3,
			categories: []string{
				"framed art above bed", "round mirror", "wall sconce pair",
			},
		},
	},
	domain.RoomDiningRoom: {
		{
			kind:     domain.StagePrimaryFurniture,
			minItems: 2, maxItems: 4,
			categories: []string{
				"dining table", "dining chairs", "sideboard", "area rug",
				"bar cart",
			},
		},
		{
			kind:     domain.StageAccessory,
			minItems: 2, maxItems: 5,
			categories: []string{
				"table centerpiece", "vase with stems", "candlesticks",
				"place settings", "potted plant",
			},
		},
		{
			kind:     domain.StageWindowTreatment,
			minItems: 1, maxItems: 2,
			categories: []string{
				"floor-length curtains", "roman shades",
			},
		},
		{
			kind:     domain.StageWallDecor,
			minItems: 1, maxItems: 3,
			categories: []string{
				"large framed art", "round mirror", "floating shelf",
			},
		},
	},
	domain.RoomHomeOffice: {
		{
			kind:     domain.StagePrimaryFurniture,
			minItems: 2, maxItems: 4,
			categories: []string{
				"desk", "office chair", "bookshelf", "area rug",
				"filing cabinet",
			},
		},
		{
			kind:     domain.StageAccessory,
			minItems: 2, maxItems: 5,
			categories: []string{
				"desk lamp", "potted plant", "desk organizer",
				"stack of books", "decorative objects",
			},
		},
		{
			kind:     domain.StageWindowTreatment,
			minItems: 1, maxItems: 2,
			categories: []string{
				"roller shades", "sheer curtains",
			},
		},
		{
			kind:     domain.StageWallDecor,
			minItems: 1, maxItems: 3,
			categories: []string{
				"framed prints", "pinboard", "floating shelf", "wall clock",
			},
		},
	},
}

// KnownRoomCategory reports whether the catalogue covers the room.
func KnownRoomCategory(room domain.RoomCategory) bool {
	_, ok := roomCatalogues[room]
	return ok
}

// RoomCategories lists the supported room categories in stable order.
func RoomCategories() []domain.RoomCategory {
	return []domain.RoomCategory{
		domain.RoomLivingRoom,
		domain.RoomBedroom,
		domain.RoomDiningRoom,
		domain.RoomHomeOffice,
	}
}
