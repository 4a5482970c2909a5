package core

import "fmt"

// XY is a global cell coordinate in the field.
type XY struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p XY) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// PartitionXY addresses one partition tile of the field.
// It is the global coordinate divided by the partition size.
type PartitionXY struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p PartitionXY) String() string {
	return fmt.Sprintf("%d-%d", p.X, p.Y)
}

// Team identifies one of the competing teams. Only the low two bits are used.
type Team uint8

// MaxTeams is the number of teams a round can have.
const MaxTeams = 4

// Delta is a single cell transition produced by a claim.
type Delta struct {
	XY     XY   `json:"xy"`
	Team   Team `json:"team"`
	IsMine bool `json:"isMine"`
}

// CellState is the tri-state of a cell as seen by viewers.
type CellState uint8

const (
	CellHidden CellState = iota
	CellClaimed
	CellMine
)

// Cell is a decoded field cell. Team is meaningful only for non-hidden cells.
type Cell struct {
	State CellState
	Team  Team
}

// TeamScore is the claimed cell count of one team.
type TeamScore struct {
	Team  Team  `json:"team"`
	Score int64 `json:"score"`
}
