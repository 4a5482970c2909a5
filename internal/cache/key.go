package cache

import "github.com/cespare/xxhash/v2"

// Key hashes the parts of a composite cache key. Parts are separated so that
// ("ab","c") and ("a","bc") differ.
func Key(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
