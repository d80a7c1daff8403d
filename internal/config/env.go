package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"

	"mgate/internal/logger"
)

// EnvManager reads prefixed environment variables, with optional support for
// values encrypted at rest ("ENC:" prefix).
type EnvManager struct {
	encryptionKey []byte
	prefix        string
}

// NewEnvManager creates an environment variable manager. The encryption key
// defaults to MGATE_ENCRYPTION_KEY; the variable prefix defaults to MGATE_.
func NewEnvManager(encryptionKey string, prefix string) *EnvManager {
	if encryptionKey == "" {
		encryptionKey = os.Getenv("MGATE_ENCRYPTION_KEY")
	}
	if prefix == "" {
		prefix = "MGATE_"
	}

	key, _ := scrypt.Key([]byte(encryptionKey), []byte("mgate-salt"), 32768, 8, 1, 32)

	return &EnvManager{
		encryptionKey: key,
		prefix:        prefix,
	}
}

// GetString gets a string environment variable.
func (em *EnvManager) GetString(key string, defaultValue string) string {
	envKey := em.prefix + strings.ToUpper(key)
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt gets an integer environment variable.
func (em *EnvManager) GetInt(key string, defaultValue int) int {
	value := em.GetString(key, "")
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// GetBool gets a boolean environment variable.
func (em *EnvManager) GetBool(key string, defaultValue bool) bool {
	value := em.GetString(key, "")
	if value == "" {
		return defaultValue
	}
	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

// GetEncryptedString gets a string variable, decrypting it when it carries
// the ENC: prefix. Decryption failures fall back to the default so a bad key
// degrades to "not configured" rather than a half-read secret.
func (em *EnvManager) GetEncryptedString(key string, defaultValue string) string {
	value := em.GetString(key, "")
	if value == "" {
		return defaultValue
	}

	if !strings.HasPrefix(value, "ENC:") {
		return value
	}

	decrypted, err := em.decrypt(strings.TrimPrefix(value, "ENC:"))
	if err != nil {
		logger.WithFields(map[string]interface{}{"key": key}).Warn("failed to decrypt environment value")
		return defaultValue
	}
	return decrypted
}

// EncryptValue encrypts a plaintext for storage as ENC:<ciphertext>.
func (em *EnvManager) EncryptValue(plaintext string) (string, error) {
	encrypted, err := em.encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	return "ENC:" + encrypted, nil
}

func (em *EnvManager) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func (em *EnvManager) decrypt(encryptedText string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aes.BlockSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(ciphertext, ciphertext)

	return string(ciphertext), nil
}
