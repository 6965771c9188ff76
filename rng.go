package eonsim

// rng.go gives each consumer of randomness its own rngstream whose draws are fixed by a
// name and a seed.  rngstream.New draws its starting state from a package-wide counter, so
// a stream created by New alone depends on how many streams were created before it.

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/iti/rngstream"
)

// rngstream state components must be below these moduli and not all zero in each half
const (
	rngModulus1 uint64 = 4294967087
	rngModulus2 uint64 = 4294944443
)

// CreateSeededStream returns a stream whose sequence of draws depends only on name and seed
func CreateSeededStream(name string, seed int) *rngstream.RngStream {
	rngstrm := rngstream.New(name)
	if !rngstrm.SetSeed(seedVector(name, seed)) {
		panic(fmt.Errorf("rejected seed vector for stream %s", name))
	}
	return rngstrm
}

// seedVector expands the hash of (name, seed) into the six components of an rngstream state
func seedVector(name string, seed int) []uint64 {
	state := xxhash.Sum64String(fmt.Sprintf("%s/%d", name, seed))
	vec := make([]uint64, 6)
	for idx := range vec {
		var draw uint64
		state, draw = splitMix64(state)
		modulus := rngModulus1
		if idx > 2 {
			modulus = rngModulus2
		}
		vec[idx] = 1 + draw%(modulus-1)
	}
	return vec
}

func splitMix64(state uint64) (uint64, uint64) {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return state, z ^ (z >> 31)
}
