package claim

import (
	"sort"

	"github.com/23skdu/field/internal/core"
)

type byOrder struct {
	deltas []core.Delta
	orders []int
}

func (b byOrder) Len() int           { return len(b.deltas) }
func (b byOrder) Less(i, j int) bool { return b.orders[i] < b.orders[j] }
func (b byOrder) Swap(i, j int) {
	b.deltas[i], b.deltas[j] = b.deltas[j], b.deltas[i]
	b.orders[i], b.orders[j] = b.orders[j], b.orders[i]
}

// sortByOrder restores request order across partitions.
func sortByOrder(deltas []core.Delta, orders []int) {
	sort.Sort(byOrder{deltas: deltas, orders: orders})
}
