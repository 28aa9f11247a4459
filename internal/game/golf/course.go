package golf

import (
	"fmt"
	"hash/fnv"
)

// Vec2 is a field-space point.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned region, used for hazards.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Hole is one playable hole layout.
type Hole struct {
	Name     string  `json:"name"`
	Par      int     `json:"par"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Tee      Vec2    `json:"tee"`
	Cup      Vec2    `json:"cup"`
	CupR     float64 `json:"cup_r"`
	Friction float64 `json:"friction"` // fraction of velocity shed per second
	Hazards  []Rect  `json:"hazards"`
}

// courseTiers is the shipped manifest: hole numbers map onto tiers of rising
// difficulty, and the concrete layout within a tier is chosen by hash.
var courseTiers = [][]Hole{
	{ // holes 1-3
		{
			Name: "fairway", Par: 2, Width: 120, Height: 60,
			Tee: Vec2{X: 15, Y: 30}, Cup: Vec2{X: 105, Y: 30}, CupR: 3, Friction: 1.2,
		},
		{
			Name: "dogleg", Par: 3, Width: 120, Height: 80,
			Tee: Vec2{X: 15, Y: 65}, Cup: Vec2{X: 100, Y: 15}, CupR: 3, Friction: 1.2,
			Hazards: []Rect{{MinX: 50, MinY: 40, MaxX: 70, MaxY: 80}},
		},
		{
			Name: "island_green", Par: 3, Width: 140, Height: 60,
			Tee: Vec2{X: 12, Y: 30}, Cup: Vec2{X: 120, Y: 30}, CupR: 3, Friction: 1.2,
			Hazards: []Rect{{MinX: 70, MinY: 0, MaxX: 95, MaxY: 22}, {MinX: 70, MinY: 38, MaxX: 95, MaxY: 60}},
		},
	},
	{ // holes 4-6
		{
			Name: "sand_alley", Par: 3, Width: 150, Height: 70,
			Tee: Vec2{X: 12, Y: 35}, Cup: Vec2{X: 135, Y: 35}, CupR: 2.5, Friction: 1.5,
			Hazards: []Rect{{MinX: 55, MinY: 0, MaxX: 75, MaxY: 30}, {MinX: 85, MinY: 40, MaxX: 110, MaxY: 70}},
		},
		{
			Name: "lakeside", Par: 4, Width: 160, Height: 80,
			Tee: Vec2{X: 14, Y: 66}, Cup: Vec2{X: 145, Y: 14}, CupR: 2.5, Friction: 1.3,
			Hazards: []Rect{{MinX: 40, MinY: 0, MaxX: 120, MaxY: 35}},
		},
	},
	{ // holes 7-9
		{
			Name: "gauntlet", Par: 4, Width: 180, Height: 70,
			Tee: Vec2{X: 12, Y: 35}, Cup: Vec2{X: 165, Y: 35}, CupR: 2, Friction: 1.6,
			Hazards: []Rect{
				{MinX: 45, MinY: 0, MaxX: 60, MaxY: 45},
				{MinX: 90, MinY: 25, MaxX: 105, MaxY: 70},
				{MinX: 130, MinY: 0, MaxX: 145, MaxY: 45},
			},
		},
		{
			Name: "needle", Par: 5, Width: 200, Height: 60,
			Tee: Vec2{X: 12, Y: 30}, Cup: Vec2{X: 185, Y: 30}, CupR: 2, Friction: 1.8,
			Hazards: []Rect{
				{MinX: 60, MinY: 0, MaxX: 150, MaxY: 24},
				{MinX: 60, MinY: 36, MaxX: 150, MaxY: 60},
			},
		},
	},
}

func tierFor(holeNumber int) []Hole {
	switch {
	case holeNumber <= 3:
		return courseTiers[0]
	case holeNumber <= 6:
		return courseTiers[1]
	default:
		return courseTiers[2]
	}
}

// SelectHole picks the layout for one hole of one session. The choice is a
// deterministic hash of (sessionID, holeNumber), so a session always replays
// the same hole sequence.
func SelectHole(sessionID string, holeNumber int) Hole {
	tier := tierFor(holeNumber)
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", sessionID, holeNumber)
	return tier[h.Sum64()%uint64(len(tier))]
}
