package kv

import (
	"fmt"

	"github.com/23skdu/field/internal/core"
)

// Key layout. Everything of a round lives under "field:{round}".

func RoundKey(round string) string {
	return "field:" + round + ":config"
}

const CurrentRoundKey = "field:current"

func CellsKey(round string, pxy core.PartitionXY) string {
	return fmt.Sprintf("field:%s:p:%s:cells", round, pxy)
}

func SequenceKey(round string, pxy core.PartitionXY) string {
	return fmt.Sprintf("field:%s:p:%s:seq", round, pxy)
}

func DeltasKey(round string, pxy core.PartitionXY) string {
	return fmt.Sprintf("field:%s:p:%s:deltas", round, pxy)
}

func TallyKey(round string, pxy core.PartitionXY) string {
	return fmt.Sprintf("field:%s:p:%s:tally", round, pxy)
}

func LeaderboardKey(round string) string {
	return "field:" + round + ":leaderboard"
}

func EliminatedKey(round string) string {
	return "field:" + round + ":eliminated"
}
