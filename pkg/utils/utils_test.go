package utils

import (
	"encoding/hex"
	"testing"
)

func TestGenerateClientID(t *testing.T) {
	id1 := GenerateClientID()
	id2 := GenerateClientID()

	if id1 == id2 {
		t.Error("expected different client IDs")
	}

	if len(id1) != 36 {
		t.Errorf("expected UUID format, got %s", id1)
	}
}

func TestGeneratePairSecret(t *testing.T) {
	s1 := GeneratePairSecret()
	s2 := GeneratePairSecret()

	if s1 == s2 {
		t.Error("expected different pair secrets")
	}

	if len(s1) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(s1))
	}

	if _, err := hex.DecodeString(s1); err != nil {
		t.Errorf("pair secret is not valid hex: %v", err)
	}
}
