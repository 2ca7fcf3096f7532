package crypto

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// AESBlockSize is the AES block size in bytes.
const AESBlockSize = aes.BlockSize

// Random generates length random bytes using a cryptographically secure source.
func Random(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// AesEncryptECB encrypts msg using AES-128 in ECB mode.
// When padding is true the message is PKCS#7 padded to a whole number
// of blocks, otherwise len(msg) must already be block aligned.
func AesEncryptECB(msg, key []byte, padding bool) ([]byte, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	if padding {
		msg = pkcs7Pad(msg, aes.BlockSize)
	}
	if len(msg)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("message length %d is not a multiple of the AES block size", len(msg))
	}

	out := make([]byte, len(msg))
	for i := 0; i < len(msg); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], msg[i:i+aes.BlockSize])
	}
	return out, nil
}

// AesDecryptECB decrypts msg using AES-128 in ECB mode.
func AesDecryptECB(msg, key []byte, padding bool) ([]byte, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	if len(msg)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("message length %d is not a multiple of the AES block size", len(msg))
	}

	out := make([]byte, len(msg))
	for i := 0; i < len(msg); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], msg[i:i+aes.BlockSize])
	}

	if padding {
		return pkcs7Unpad(out, aes.BlockSize)
	}
	return out, nil
}

// Sign signs msg with the given RSA private key using SHA-256.
func Sign(msg []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(msg)
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signature, nil
}

// Verify reports whether signature over msg was produced by the key behind cert.
func Verify(msg, signature []byte, cert *x509.Certificate) bool {
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(msg)
	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], signature) == nil
}

// Sha256 returns the SHA-256 hash of data.
func Sha256(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}

// StrToHex converts input into an uppercase HEX string.
func StrToHex(input []byte) string {
	return fmt.Sprintf("%X", input)
}

// HexToStr decodes a HEX string, optionally reversing the byte order.
func HexToStr(h string, reverse bool) ([]byte, error) {
	decoded, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex string: %w", err)
	}
	if reverse {
		for i, j := 0, len(decoded)-1; i < j; i, j = i+1, j-1 {
			decoded[i], decoded[j] = decoded[j], decoded[i]
		}
	}
	return decoded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded data length: %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding byte: %d", b)
		}
	}
	return data[:len(data)-padLen], nil
}
