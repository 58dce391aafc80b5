package p2p

import (
	"math/rand"
)

// pick removes a uniformly random element from items and returns it with the shrunk slice.
// The order of the remaining elements is not preserved.
func pick[T any](items []T, rng *rand.Rand) (T, []T) {
	i := rng.Intn(len(items))
	chosen := items[i]
	last := len(items) - 1
	items[i] = items[last]
	return chosen, items[:last]
}
