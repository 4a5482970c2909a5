// Package storage uploads published partition blobs and fetches them back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/23skdu/field/internal/core"
)

// ContentType is the media type of every published blob.
const ContentType = "application/binary"

// ErrNotFound means a blob has not been published (yet).
var ErrNotFound = errors.New("storage: blob not found")

// NotFoundError indicates a blob was not found
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("blob not found: %s", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFoundError checks if an error is a NotFoundError
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// BlobKey addresses one published blob.
type BlobKey struct {
	Round     string
	Partition core.PartitionXY
	Seq       int64
	Kind      core.BlobKind
}

// Path renders the object path under prefix:
// {prefix}/{round}/{px}-{py}/{seq}.{kind}
func (k BlobKey) Path(prefix string) string {
	p := path.Join(k.Round, k.Partition.String(), strconv.FormatInt(k.Seq, 10)+"."+string(k.Kind))
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		p = prefix + "/" + p
	}
	return p
}

// ParseBlobPath is the inverse of BlobKey.Path for an unprefixed path.
func ParseBlobPath(p string) (BlobKey, error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) != 3 {
		return BlobKey{}, fmt.Errorf("blob path %q: want round/partition/seq.kind", p)
	}
	var k BlobKey
	k.Round = parts[0]
	if _, err := fmt.Sscanf(parts[1], "%d-%d", &k.Partition.X, &k.Partition.Y); err != nil {
		return BlobKey{}, fmt.Errorf("blob path %q: partition: %w", p, err)
	}
	name, kind, ok := strings.Cut(parts[2], ".")
	if !ok || !(core.BlobKind(kind).Valid() || core.BlobKind(kind) == core.KindArchive) {
		return BlobKey{}, fmt.Errorf("blob path %q: unknown kind", p)
	}
	k.Kind = core.BlobKind(kind)
	seq, err := strconv.ParseInt(name, 10, 64)
	if err != nil || seq < 0 {
		return BlobKey{}, fmt.Errorf("blob path %q: bad sequence number", p)
	}
	k.Seq = seq
	return k, nil
}

// Uploader stores blobs.
type Uploader interface {
	Upload(ctx context.Context, key BlobKey, data []byte) error
}

// Fetcher retrieves blobs. A blob that does not exist yet yields an error
// matching ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, key BlobKey) ([]byte, error)
}
