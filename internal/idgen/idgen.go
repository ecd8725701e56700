// Package idgen generates short random identifiers for crank runs and
// export snapshots.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PrefixCrankRun = "crank-"
	PrefixSnapshot = "snap-"
)

// alphabet is lowercase so ids survive case-insensitive log search.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 12

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// CrankRunID identifies one crank call across its log lines and events.
func CrankRunID() (string, error) { return New(PrefixCrankRun) }

// SnapshotID identifies one export snapshot.
func SnapshotID() (string, error) { return New(PrefixSnapshot) }

// Valid reports whether id has prefix and a well-formed random part.
func Valid(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || len(rest) != Length {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}
