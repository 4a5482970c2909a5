package codec

import "errors"

var (
	// ErrTruncated is returned when a buffer ends before a record or section does.
	ErrTruncated = errors.New("codec: truncated input")
	// ErrMalformed is returned when headers, lengths or reserved values disagree.
	ErrMalformed = errors.New("codec: malformed input")
	// ErrOutsidePartition is returned when a delta does not belong to the encoded partition.
	ErrOutsidePartition = errors.New("codec: delta outside partition")
)
