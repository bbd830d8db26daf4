package ntheory

import "math/rand"

// IsPrime trial-divides n, sufficient for the 8-to-16-bit range
// ObfuscateConstant/ObfuscateZero draw their primes from (randPrime(1<<8,
// 1<<16) in the original); a sieve would be overkill at this scale.
func IsPrime(n uint32) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint32(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// RandPrime draws a uniformly random prime in [min, max) using rng,
// matching randPrime(min, max)'s role in the original passes: every call
// site passes a pass-local *rand.Rand seeded from the pipeline's
// configured seed, so an obfuscation run is reproducible end to end.
func RandPrime(rng *rand.Rand, min, max uint32) uint32 {
	if max <= min {
		return min
	}
	span := max - min
	for {
		cand := min + uint32(rng.Intn(int(span)))
		if IsPrime(cand) {
			return cand
		}
	}
}

// DistinctPrimePair draws two distinct primes in [min, max), as
// ObfuscateConstant's replaceZero case 0 does for its two MBA identity
// moduli.
func DistinctPrimePair(rng *rand.Rand, min, max uint32) (uint32, uint32) {
	p1 := RandPrime(rng, min, max)
	p2 := RandPrime(rng, min, max)
	for p2 == p1 {
		p2 = RandPrime(rng, min, max)
	}
	return p1, p2
}
