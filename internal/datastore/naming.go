package datastore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NameGenerator produces on-disk names for device attachments. Tests inject
// deterministic implementations.
type NameGenerator interface {
	// Unique returns a collision-resistant file name for stem and ext
	// (ext includes its leading dot, or is empty).
	Unique(stem, ext string) string
	// Disambiguate returns an alternative name used when a rename target
	// is already taken.
	Disambiguate(stem, ext string) string
	// FileID returns a fresh opaque file reference identifier.
	FileID() string
}

// RandomNames appends a unix timestamp and a short random hex suffix.
type RandomNames struct {
	Now func() time.Time
}

// NewRandomNames returns a RandomNames using the wall clock.
func NewRandomNames() RandomNames {
	return RandomNames{Now: time.Now}
}

func (g RandomNames) Unique(stem, ext string) string {
	return fmt.Sprintf("%s-%d-%s%s", stem, g.Now().UTC().Unix(), randomHex(3), ext)
}

func (g RandomNames) Disambiguate(stem, ext string) string {
	return fmt.Sprintf("%s-%s%s", stem, randomHex(2), ext)
}

func (g RandomNames) FileID() string {
	return "file-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
