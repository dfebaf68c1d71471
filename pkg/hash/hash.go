// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash provides content hashing for state fingerprints and
// corpus identity. Equal hashes are treated as equal states; the hash
// is cryptographic-strength so collisions are assumed not to occur
// within a campaign.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

type Sig [sha256.Size]byte

func Hash(pieces ...[]byte) Sig {
	h := sha256.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

// Truncate64 folds the signature into a 64-bit key for use in signal
// sets and map keys where the full width is not needed.
func (sig Sig) Truncate64() uint64 {
	return binary.LittleEndian.Uint64(sig[:8])
}

func FromBytes(b []byte) (Sig, bool) {
	var sig Sig
	if len(b) != len(sig) {
		return sig, false
	}
	copy(sig[:], b)
	return sig, true
}
