package codec

import (
	"reflect"

	"github.com/23skdu/field/internal/core"
)

type segment struct {
	State  uint8
	Team   uint8
	Length int
}

var reflectSegment = reflect.TypeOf(segment{})

func (s segment) cell() core.Cell {
	if s.State == 0 {
		return core.Cell{}
	}
	return core.Cell{State: core.CellState(s.State), Team: core.Team(s.Team)}
}
