package core

// BlobKind distinguishes incremental patches from full partition replacements.
type BlobKind string

const (
	// KindPatch is a list of deltas for one publication tick.
	KindPatch BlobKind = "patch"
	// KindReplace is a full snapshot of one partition.
	KindReplace BlobKind = "replace"
	// KindArchive is the Parquet archive of a partition written when its
	// round ends. It is stored but never announced.
	KindArchive BlobKind = "parquet"
)

// Valid reports whether k is a kind that can be announced.
func (k BlobKind) Valid() bool {
	return k == KindPatch || k == KindReplace
}

// Notification announces a published blob for one partition.
type Notification struct {
	Kind           BlobKind    `json:"kind"`
	Round          string      `json:"round"`
	Partition      PartitionXY `json:"partitionXY"`
	SequenceNumber int64       `json:"sequenceNumber"`
	NoChange       bool        `json:"noChange"`
}
