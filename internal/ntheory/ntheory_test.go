package ntheory_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/ntheory"
)

func TestModInv64RoundTrips(t *testing.T) {
	odds := []uint64{1, 3, 5, 12345, 0xdeadbeef, ^uint64(0)}
	for _, a := range odds {
		inv := ntheory.ModInv64(a)
		assert.Equal(t, uint64(1), a*inv, "a=%d inv=%d", a, inv)
	}
}

func TestIsPrime(t *testing.T) {
	primes := []uint32{2, 3, 5, 7, 11, 104729, 65521}
	for _, p := range primes {
		assert.True(t, ntheory.IsPrime(p), "%d should be prime", p)
	}
	composites := []uint32{0, 1, 4, 6, 8, 9, 65536}
	for _, c := range composites {
		assert.False(t, ntheory.IsPrime(c), "%d should not be prime", c)
	}
}

func TestRandPrimeInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := ntheory.RandPrime(rng, 1<<8, 1<<16)
		require.True(t, p >= 1<<8 && p < 1<<16)
		assert.True(t, ntheory.IsPrime(p))
	}
}

func TestDistinctPrimePair(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p1, p2 := ntheory.DistinctPrimePair(rng, 1<<8, 1<<16)
	assert.NotEqual(t, p1, p2)
	assert.True(t, ntheory.IsPrime(p1))
	assert.True(t, ntheory.IsPrime(p2))
}

func TestFNVHashDeterministic(t *testing.T) {
	a := ntheory.FNVHash(12345, 17)
	b := ntheory.FNVHash(12345, 17)
	assert.Equal(t, a, b)
	assert.Less(t, a, uint32(17))
}
