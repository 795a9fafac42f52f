// Package identity mints the pseudo-anonymous browser tokens that stand in
// for a user: they sign reviews and key votes. They carry no uniqueness or
// collision guarantee.
package identity

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/lucsky/cuid"
)

var (
	prefixes = []string{"ZRX", "QXY", "VTK", "NMZ", "PLQ", "KJH", "WRT", "BCV", "XYZ", "QWE"}
	suffixes = []string{"7X9", "3K2", "8V5", "1Q4", "9Z7", "2A6", "5C8", "4B3", "6D1", "7E9"}

	pattern = regexp.MustCompile(`^[A-Z]{3}-[0-9A-Z]{6}-[0-9A-Z]{3}$`)
)

const middleLen = 6

// New returns a token shaped like ZRX-K3J9QA-7X9.
func New() string {
	return prefixes[rand.IntN(len(prefixes))] + "-" + middle() + "-" + suffixes[rand.IntN(len(suffixes))]
}

// middle takes the tail of a cuid, which is its random block.
func middle() string {
	id := cuid.New()
	return strings.ToUpper(id[len(id)-middleLen:])
}

func Valid(s string) bool { return pattern.MatchString(s) }
