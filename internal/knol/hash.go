package knol

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/conorfennell/ankibot/internal/domain"
)

// Normalize renders a field set as "name=value" lines sorted by field name.
// Values are trimmed, and CRLF line endings are folded to LF so that an
// edit that only touches whitespace keeps the same fingerprint.
func Normalize(fields domain.FieldSet) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		v := strings.ReplaceAll(fields[name], "\r\n", "\n")
		v = strings.TrimSpace(v)
		lines = append(lines, name+"="+v)
	}
	return strings.Join(lines, "\n")
}

// Hash returns the SHA-256 of the normalized field set as a hex string.
func Hash(fields domain.FieldSet) string {
	hashBytes := sha256.Sum256([]byte(Normalize(fields)))
	return fmt.Sprintf("%x", hashBytes)
}
