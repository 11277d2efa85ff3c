package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Code prefixes for the entities this service creates or validates.
const (
	ReservationPrefix = "RES"
	PlacePrefix       = "PLA"
)

const (
	codeAlphabet  = "AZERTYUIOPQSDFGHJKLMWXCVBNazertyuiopqsdfghjklmwxcvbn1234567890"
	codeSuffixLen = 5
	codeLen       = 3 + 1 + 13 + 1 + codeSuffixLen // PREFIX-<13 digit millis>-<5 chars>
)

// NewCode returns PREFIX-<unix millis>-<5 random characters>.  The
// suffix comes from crypto/rand; if the reader fails, the nanosecond part
// of the clock is used instead so that a code is always produced.
func NewCode(prefix string) string {
	return newCodeAt(prefix, time.Now())
}

func newCodeAt(prefix string, now time.Time) string {
	var b strings.Builder
	b.Grow(codeLen)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		idx := 0
		if err != nil {
			idx = (now.Nanosecond() >> (i * 3)) % len(codeAlphabet)
		} else {
			idx = int(n.Int64())
		}
		b.WriteByte(codeAlphabet[idx])
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), b.String())
}

// IsReservationCode reports whether code has the shape of a reservation code.
func IsReservationCode(code string) bool { return isCode(code, ReservationPrefix) }

// IsPlaceCode reports whether code has the shape of a place code.
func IsPlaceCode(code string) bool { return isCode(code, PlacePrefix) }

func isCode(code, prefix string) bool {
	return len(code) == codeLen && strings.Contains(code, prefix+"-")
}
