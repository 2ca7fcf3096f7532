package utils

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateClientID generates the durable identity of a paired client.
func GenerateClientID() string {
	return uuid.NewString()
}

// GeneratePairSecret generates the opaque token identifying one pairing
// attempt across its HTTP phases.
func GeneratePairSecret() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
