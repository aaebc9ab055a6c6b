package protocol

import (
	"crypto/rand"
)

// roomCodeAlphabet excludes the visually ambiguous characters O, I, 0, 1
// per the spec's recommended room-code alphabet.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultRoomCodeLength is the length of broker-generated room codes.
const DefaultRoomCodeLength = 4

// GenerateRoomCode returns a random room code drawn from the unambiguous
// alphabet. Client-supplied codes are not required to come from this
// generator; they are accepted as long as they are non-empty.
func GenerateRoomCode() string {
	b := make([]byte, DefaultRoomCodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}
