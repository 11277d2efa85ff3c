package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeShape(t *testing.T) {
	now := time.UnixMilli(1709251200123)
	code := newCodeAt(ReservationPrefix, now)

	require.Len(t, code, 23)
	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "RES", parts[0])
	assert.Equal(t, "1709251200123", parts[1])
	for _, r := range parts[2] {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.True(t, IsReservationCode(code))
	assert.False(t, IsPlaceCode(code))
}

func TestNewCodeIsUnlikelyToRepeat(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		seen[NewCode(PlacePrefix)] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestIsCodeRejectsOtherShapes(t *testing.T) {
	assert.False(t, IsPlaceCode(""))
	assert.False(t, IsPlaceCode("PLA-1"))
	assert.False(t, IsPlaceCode("RES-1709251200123-abcde"))
	assert.True(t, IsPlaceCode("PLA-1709251200123-abcde"))
}
