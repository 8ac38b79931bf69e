package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomStringGenerator_GetRandomString(t *testing.T) {
	gen := CreateRandomstringGenerator(1)
	s := gen.GetRandomString(6)

	assert.Len(t, []rune(s), 6)
	assert.False(t, strings.ContainsAny(s, "0OlI"))
}

func TestRandomStringGenerator_deterministicPerSeed(t *testing.T) {
	a := CreateRandomstringGenerator(42)
	b := CreateRandomstringGenerator(42)
	assert.Equal(t, a.GetRandomString(10), b.GetRandomString(10))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("http://a.test", []string{"http://b.test", "http://a.test"}))
	assert.False(t, Contains("http://a.test", nil))
	assert.False(t, Contains("", []string{"http://a.test"}))
}
