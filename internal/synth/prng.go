// Package synth deterministically derives the candidate feature catalogue
// from an OHLCV series. Randomized candidates use an explicit seeded
// generator so identical (seed, symbol, timeframe) inputs reproduce the
// catalogue bit-for-bit.
package synth

import "fmt"

// splitmix64 is the PRNG behind randomized candidate pairing. The algorithm
// is fixed (Steele et al., SplitMix64) rather than the standard library's
// default source, so generated catalogues stay stable across Go releases.
type splitmix64 struct {
	state uint64
}

// newSplitmix64 seeds the generator from (baseSeed, symbol, timeframe)
// via FNV-1a over the formatted key.
func newSplitmix64(baseSeed int64, symbol, timeframe string) *splitmix64 {
	return &splitmix64{state: fnv64a(fmt.Sprintf("%d|%s|%s", baseSeed, symbol, timeframe))}
}

// next returns the next 64-bit value.
func (r *splitmix64) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// intn returns a value in [0, n). n must be positive.
func (r *splitmix64) intn(n int) int {
	return int(r.next() % uint64(n))
}

// fnv64a hashes s with 64-bit FNV-1a.
func fnv64a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}
