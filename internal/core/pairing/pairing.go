// Package pairing implements the certificate-trust handshake between a
// Moonlight client and this host. The user-entered PIN never travels in
// clear-usable form: both sides derive an AES key from a salted hash of
// the PIN and exchange AES-ECB obfuscated challenges, and the client
// certificate is only trusted after its pairing secret signature checks
// out.
package pairing

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/Relicjamin-jv/wolf/pkg/crypto"

	cryptorand "crypto/rand"
)

const (
	secretSize    = 16
	challengeSize = 16
)

// AESKeyFromSalt derives the pairing AES key from the exchanged salt
// and the user-entered PIN: the first 16 bytes of SHA-256(salt || pin).
func AESKeyFromSalt(salt []byte, pin string) []byte {
	return crypto.Sha256(append(append([]byte{}, salt...), []byte(pin)...))[:16]
}

// GeneratePin returns a random 4-digit PIN as the user will type it.
func GeneratePin() (string, error) {
	n, err := cryptorand.Int(cryptorand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// Handshake tracks one pairing attempt through its four phases.
// It is used by a single goroutine; concurrency is the caller's concern.
type Handshake struct {
	hostCert *x509.Certificate
	hostKey  *rsa.PrivateKey

	clientCert *x509.Certificate
	aesKey     []byte

	serverSecret    []byte
	serverChallenge []byte
	clientHash      []byte
}

func NewHandshake(hostCert *x509.Certificate, hostKey *rsa.PrivateKey) *Handshake {
	return &Handshake{hostCert: hostCert, hostKey: hostKey}
}

// ClientCert returns the certificate under negotiation. It must not be
// trusted before VerifyClientSecret has succeeded.
func (h *Handshake) ClientCert() *x509.Certificate {
	return h.clientCert
}

// Begin consumes the client salt and certificate and derives the
// pairing AES key from the PIN. Returns the host certificate PEM the
// client will pin against.
func (h *Handshake) Begin(salt []byte, clientCertPEM, pin string) (string, error) {
	clientCert, err := crypto.CertFromPEM(clientCertPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse client certificate: %w", err)
	}
	h.clientCert = clientCert
	h.aesKey = AESKeyFromSalt(salt, pin)
	return crypto.CertToPEM(h.hostCert), nil
}

// ClientChallenge decrypts the client challenge and answers with the
// hash of (challenge || host cert signature || fresh server secret),
// concatenated with a fresh server challenge, AES-ECB encrypted.
func (h *Handshake) ClientChallenge(encrypted []byte) ([]byte, error) {
	if h.aesKey == nil {
		return nil, fmt.Errorf("pairing handshake out of order: no AES key yet")
	}
	challenge, err := crypto.AesDecryptECB(encrypted, h.aesKey, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client challenge: %w", err)
	}

	h.serverSecret, err = crypto.Random(secretSize)
	if err != nil {
		return nil, err
	}
	h.serverChallenge, err = crypto.Random(challengeSize)
	if err != nil {
		return nil, err
	}

	plain := crypto.Sha256(concat(challenge, crypto.CertSignature(h.hostCert), h.serverSecret))
	response, err := crypto.AesEncryptECB(concat(plain, h.serverChallenge), h.aesKey, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt challenge response: %w", err)
	}
	return response, nil
}

// ServerChallengeResponse stores the client's hash of the server
// challenge and reveals the server secret together with its signature.
func (h *Handshake) ServerChallengeResponse(encrypted []byte) ([]byte, error) {
	if h.aesKey == nil {
		return nil, fmt.Errorf("pairing handshake out of order: no AES key yet")
	}
	clientHash, err := crypto.AesDecryptECB(encrypted, h.aesKey, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt server challenge response: %w", err)
	}
	h.clientHash = clientHash

	signature, err := crypto.Sign(h.serverSecret, h.hostKey)
	if err != nil {
		return nil, err
	}
	return concat(h.serverSecret, signature), nil
}

// VerifyClientSecret checks the final pairing secret: the hash the
// client committed to earlier must match (server challenge || client
// cert signature || secret), and the secret's signature must verify
// against the client certificate. Only then is the certificate trusted.
func (h *Handshake) VerifyClientSecret(clientSecret, signature []byte) error {
	if h.clientCert == nil || h.clientHash == nil {
		return fmt.Errorf("pairing handshake out of order: missing earlier phases")
	}

	// The committed hash arrives as attacker-controlled ciphertext; a
	// single block decrypts to fewer bytes than a SHA-256 digest.
	expected := crypto.Sha256(concat(h.serverChallenge, crypto.CertSignature(h.clientCert), clientSecret))
	if len(h.clientHash) < len(expected) || !bytes.Equal(expected, h.clientHash[:len(expected)]) {
		return fmt.Errorf("pairing secret hash mismatch")
	}

	if !crypto.Verify(clientSecret, signature, h.clientCert) {
		return fmt.Errorf("pairing secret signature verification failed")
	}
	return nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
