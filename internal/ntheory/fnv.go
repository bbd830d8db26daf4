// Package ntheory collects the small number-theoretic primitives the
// obfuscation passes share: a non-standard FNV-style hash (Flattening's
// dispatcher keys), a mod-2^64 modular inverse (ObfuscateConstant's
// constant-splitting identity), and prime search (the MBA-identity primes
// used by ObfuscateZero/ObfuscateConstant).
package ntheory

// FnvPrime and FnvBasis are not the canonical FNV-1a constants; they are
// the exact values YANSOllvm's Util.h hardcodes. Flattening's dispatcher
// keys are drawn through FNVHash with these constants.
const (
	FnvPrime uint32 = 19260817
	FnvBasis uint32 = 0x114514
)

// FNVHash folds data's four bytes (little-endian lanes) into the FNV-style
// accumulator seeded by FnvBasis, then reduces the result modulo b; b == 0
// returns the unreduced hash (the form Flattening uses for its dispatcher
// keys).
func FNVHash(data uint32, b uint32) uint32 {
	h := FnvBasis
	for lane := 0; lane < 4; lane++ {
		byteVal := (data >> (8 * uint(lane))) & 0xFF
		h = (h ^ byteVal) * FnvPrime
	}
	if b == 0 {
		return h
	}
	return h % b
}
