// Package id generates sortable identifiers: ULIDs for artifact storage
// keys and short references for human-facing document numbers.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Crockford's Base32 alphabet (excludes I, L, O, U to avoid confusion).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewULID generates a ULID: 26 characters, 10 of 48-bit millisecond
// timestamp followed by 16 of 80-bit randomness. Lexicographically
// sortable by creation time, which keeps artifact listings in upload order.
func NewULID() string {
	ms := uint64(time.Now().UnixMilli())

	randomBytes := make([]byte, 10)
	if _, err := rand.Read(randomBytes); err != nil {
		// Degraded but functional fallback.
		binary.BigEndian.PutUint64(randomBytes[:8], uint64(time.Now().UnixNano()))
	}

	var ulid [26]byte

	// Encode timestamp (48 bits = 10 base32 chars).
	ulid[0] = crockfordBase32[(ms>>45)&0x1F]
	ulid[1] = crockfordBase32[(ms>>40)&0x1F]
	ulid[2] = crockfordBase32[(ms>>35)&0x1F]
	ulid[3] = crockfordBase32[(ms>>30)&0x1F]
	ulid[4] = crockfordBase32[(ms>>25)&0x1F]
	ulid[5] = crockfordBase32[(ms>>20)&0x1F]
	ulid[6] = crockfordBase32[(ms>>15)&0x1F]
	ulid[7] = crockfordBase32[(ms>>10)&0x1F]
	ulid[8] = crockfordBase32[(ms>>5)&0x1F]
	ulid[9] = crockfordBase32[ms&0x1F]

	// Encode random bytes (80 bits = 16 base32 chars).
	ulid[10] = crockfordBase32[(randomBytes[0]>>3)&0x1F]
	ulid[11] = crockfordBase32[((randomBytes[0]&0x07)<<2)|((randomBytes[1]>>6)&0x03)]
	ulid[12] = crockfordBase32[(randomBytes[1]>>1)&0x1F]
	ulid[13] = crockfordBase32[((randomBytes[1]&0x01)<<4)|((randomBytes[2]>>4)&0x0F)]
	ulid[14] = crockfordBase32[((randomBytes[2]&0x0F)<<1)|((randomBytes[3]>>7)&0x01)]
	ulid[15] = crockfordBase32[(randomBytes[3]>>2)&0x1F]
	ulid[16] = crockfordBase32[((randomBytes[3]&0x03)<<3)|((randomBytes[4]>>5)&0x07)]
	ulid[17] = crockfordBase32[randomBytes[4]&0x1F]
	ulid[18] = crockfordBase32[(randomBytes[5]>>3)&0x1F]
	ulid[19] = crockfordBase32[((randomBytes[5]&0x07)<<2)|((randomBytes[6]>>6)&0x03)]
	ulid[20] = crockfordBase32[(randomBytes[6]>>1)&0x1F]
	ulid[21] = crockfordBase32[((randomBytes[6]&0x01)<<4)|((randomBytes[7]>>4)&0x0F)]
	ulid[22] = crockfordBase32[((randomBytes[7]&0x0F)<<1)|((randomBytes[8]>>7)&0x01)]
	ulid[23] = crockfordBase32[(randomBytes[8]>>2)&0x1F]
	ulid[24] = crockfordBase32[((randomBytes[8]&0x03)<<3)|((randomBytes[9]>>5)&0x07)]
	ulid[25] = crockfordBase32[randomBytes[9]&0x1F]

	return string(ulid[:])
}

// NewReference generates a 16-character sortable reference suitable for
// document numbers (e.g. INV-01HG5K3M2Q9XVT). 6 chars of timestamp plus
// 10 chars of randomness; URL-safe and unambiguous when read aloud.
func NewReference() string {
	ms := uint64(time.Now().UnixMilli())

	randomBytes := make([]byte, 6)
	if _, err := rand.Read(randomBytes); err != nil {
		ns := uint64(time.Now().UnixNano())
		for i := range randomBytes {
			randomBytes[i] = byte(ns >> (8 * i))
		}
	}

	var ref [16]byte

	// Lower 30 bits of milliseconds: ~34 years of unique timestamps.
	ts := ms & 0x3FFFFFFF
	ref[0] = crockfordBase32[(ts>>25)&0x1F]
	ref[1] = crockfordBase32[(ts>>20)&0x1F]
	ref[2] = crockfordBase32[(ts>>15)&0x1F]
	ref[3] = crockfordBase32[(ts>>10)&0x1F]
	ref[4] = crockfordBase32[(ts>>5)&0x1F]
	ref[5] = crockfordBase32[ts&0x1F]

	ref[6] = crockfordBase32[(randomBytes[0]>>3)&0x1F]
	ref[7] = crockfordBase32[((randomBytes[0]&0x07)<<2)|((randomBytes[1]>>6)&0x03)]
	ref[8] = crockfordBase32[(randomBytes[1]>>1)&0x1F]
	ref[9] = crockfordBase32[((randomBytes[1]&0x01)<<4)|((randomBytes[2]>>4)&0x0F)]
	ref[10] = crockfordBase32[((randomBytes[2]&0x0F)<<1)|((randomBytes[3]>>7)&0x01)]
	ref[11] = crockfordBase32[(randomBytes[3]>>2)&0x1F]
	ref[12] = crockfordBase32[((randomBytes[3]&0x03)<<3)|((randomBytes[4]>>5)&0x07)]
	ref[13] = crockfordBase32[randomBytes[4]&0x1F]
	ref[14] = crockfordBase32[(randomBytes[5]>>3)&0x1F]
	ref[15] = crockfordBase32[(randomBytes[5]&0x07)<<2]

	return string(ref[:])
}
