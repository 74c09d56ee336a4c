package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash — SHA-256 от UTF-8 байтов текста в hex (64 символа).
// Используется как ключ кэша эмбеддингов и сохраняется в чанке.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
