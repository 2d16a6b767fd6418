package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "rust", Slugify("Rust"))
	assert.Equal(t, "tom-clancys-rainbow-six-siege", Slugify("Tom Clancy's Rainbow Six Siege"))
	assert.Equal(t, "age-of-empires-iv", Slugify("Age of Empires IV"))
	assert.Equal(t, "a-b", Slugify("  A -- B  "))
}

func TestMillify(t *testing.T) {
	assert.Equal(t, "999", Millify(999, 2))
	assert.Equal(t, "1K", Millify(1000, 2))
	assert.Equal(t, "1.5M", Millify(1500000, 2))
	assert.Equal(t, "-2.5K", Millify(-2500, 2))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 50, Percentage(30, 60))
	assert.Equal(t, 100, Percentage(60, 60))
	assert.Equal(t, 0, Percentage(0, 60))
	assert.Equal(t, 0, Percentage(30, 0))
}

func TestHashKey(t *testing.T) {
	a := HashKey("https://example.com/a.png")
	b := HashKey("https://example.com/b.png")

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashKey("https://example.com/a.png"))
}
