package session

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Namespace returns a short stable identifier for a backend base URL so
// sessions against different backends never share storage.
func Namespace(baseURL string) string {
	normalized := strings.TrimRight(strings.ToLower(strings.TrimSpace(baseURL)), "/")
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
