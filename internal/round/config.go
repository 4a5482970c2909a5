package round

import (
	"fmt"
	"regexp"
	"time"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/grid"
)

const (
	// MaxArea caps the number of cells in one round.
	MaxArea = int64(grid.MaxPartitionsPerSide*grid.MaxPartitionSize) * int64(grid.MaxPartitionsPerSide*grid.MaxPartitionSize)

	DefaultPartitionPeriod = 30
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config is the immutable shape of a round plus its end state.
type Config struct {
	ID              string    `json:"id"`
	Size            int       `json:"size"`
	PartitionSize   int       `json:"partitionSize"`
	MineDensity     int       `json:"mineDensity"`
	PartitionPeriod int       `json:"partitionPeriod"`
	Teams           int       `json:"teams"`
	Seed            uint64    `json:"seed"`
	CreatedAt       time.Time `json:"createdAt"`

	Ended  bool       `json:"ended"`
	Winner *core.Team `json:"winner,omitempty"`
}

// Validate rejects configurations that cannot be tiled, stored or scored.
// Integer-ness of the numeric fields is enforced by their types when decoding.
func (c Config) Validate() error {
	if c.ID != "" && !idPattern.MatchString(c.ID) {
		return invalid("id", fmt.Sprintf("%q must match %s", c.ID, idPattern))
	}
	if _, err := grid.NewLayout(c.Size, c.PartitionSize); err != nil {
		return fielderrors.WrapValidationError(err, "round.validate", "invalid layout")
	}
	if c.MineDensity < 0 || c.MineDensity > 100 {
		return invalid("mineDensity", fmt.Sprintf("must be in [0,100], got %d", c.MineDensity))
	}
	if area := int64(c.Size) * int64(c.Size); area > MaxArea {
		return invalid("size", fmt.Sprintf("area %d exceeds %d", area, MaxArea))
	}
	if c.PartitionPeriod < 1 {
		return invalid("partitionPeriod", fmt.Sprintf("must be >= 1, got %d", c.PartitionPeriod))
	}
	if c.Teams < 2 || c.Teams > core.MaxTeams {
		return invalid("teams", fmt.Sprintf("must be in [2,%d], got %d", core.MaxTeams, c.Teams))
	}
	return nil
}

func invalid(field, msg string) error {
	return fielderrors.WrapValidationError(core.NewInvalidArgumentError(field, msg), "round.validate", "invalid round config")
}

// WithDefaults fills zero-valued optional fields.
func (c Config) WithDefaults() Config {
	if c.PartitionPeriod == 0 {
		c.PartitionPeriod = DefaultPartitionPeriod
	}
	if c.Teams == 0 {
		c.Teams = core.MaxTeams
	}
	return c
}

// Layout returns the partition tiling. Only valid for validated configs.
func (c Config) Layout() grid.Layout {
	return grid.Layout{Size: c.Size, PartitionSize: c.PartitionSize}
}

// Mines returns the deterministic mine layout of the round.
func (c Config) Mines() MineField {
	return MineField{seed: c.Seed, density: c.MineDensity}
}
