package sentiment

import (
	"crypto/sha1" //nolint:gosec // identity, not security
	"encoding/hex"

	"github.com/darthbatman/TypeSense/internal/domain"
)

// ContentID returns the lowercase hex SHA-1 of text. Author and position play no part.
func ContentID(text string) domain.ContentID {
	sum := sha1.Sum([]byte(text)) //nolint:gosec
	return domain.ContentID(hex.EncodeToString(sum[:]))
}
