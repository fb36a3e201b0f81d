package export

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"strings"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
)

const encryptionAlgorithmAESGCM = "aes-256-gcm"

// encrypt seals data with AES-256-GCM. The random nonce is prepended to
// the ciphertext; decrypt splits it back off. Runs after compression so
// the compressor sees plaintext.
func encrypt(data []byte, opts report.EncryptionOptions) ([]byte, error) {
	algorithm := strings.ToLower(opts.Algorithm)
	if algorithm == "" {
		algorithm = encryptionAlgorithmAESGCM
	}
	if algorithm != encryptionAlgorithmAESGCM {
		return nil, errors.NewEncodingError("UNSUPPORTED_ENCRYPTION",
			"encryption algorithm must be "+encryptionAlgorithmAESGCM)
	}
	if len(opts.Key) != 32 {
		return nil, errors.NewEncodingError("INVALID_ENCRYPTION_KEY",
			"aes-256-gcm requires a 32-byte key")
	}

	block, err := aes.NewCipher(opts.Key)
	if err != nil {
		return nil, errors.NewEncodingError("ENCRYPTION_FAILED", "cipher initialization failed").WithCause(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewEncodingError("ENCRYPTION_FAILED", "GCM initialization failed").WithCause(err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.NewEncodingError("ENCRYPTION_FAILED", "nonce generation failed").WithCause(err)
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt reverses encrypt. Exposed for recipients with the shared key
// and exercised by the export tests.
func decrypt(data []byte, key []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.NewEncodingError("INVALID_ENCRYPTION_KEY",
			"aes-256-gcm requires a 32-byte key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewEncodingError("DECRYPTION_FAILED", "cipher initialization failed").WithCause(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewEncodingError("DECRYPTION_FAILED", "GCM initialization failed").WithCause(err)
	}

	if len(data) < gcm.NonceSize() {
		return nil, errors.NewEncodingError("DECRYPTION_FAILED", "ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.NewEncodingError("DECRYPTION_FAILED", "authentication failed").WithCause(err)
	}
	return plaintext, nil
}
