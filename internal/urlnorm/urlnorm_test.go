package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tagstats/internal/urlnorm"
)

func TestNormalizeStripsQueryAndFragment(t *testing.T) {
	assert.Equal(t, "http://a.com/x", urlnorm.Normalize("http://a.com/x?y=1"))
	assert.Equal(t, "http://a.com/x", urlnorm.Normalize("http://a.com/x#section"))
	assert.Equal(t, "https://shop.example/cart/items", urlnorm.Normalize("https://shop.example/cart/items?sku=42&ref=home#top"))
}

func TestNormalizeKeepsBareURLs(t *testing.T) {
	assert.Equal(t, "http://a.com/x", urlnorm.Normalize("http://a.com/x"))
	assert.Equal(t, "http://a.com", urlnorm.Normalize("http://a.com"))
}

func TestNormalizeEmpty(t *testing.T) {
	assert.Equal(t, "", urlnorm.Normalize(""))
}

func TestNormalizeUndefinedSentinel(t *testing.T) {
	assert.Equal(t, "undefined", urlnorm.Normalize("undefined"))
	assert.Equal(t, "UNDEFINED", urlnorm.Normalize("UNDEFINED"))
	assert.Equal(t, "Undefined", urlnorm.Normalize("Undefined"))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"http://a.com/x?y=1",
		"https://b.example/path/deep#frag",
		"not a url at all?query=1",
		"://already-stripped",
		"UNDEFINED",
		"",
	}
	for _, in := range inputs {
		once := urlnorm.Normalize(in)
		assert.Equal(t, once, urlnorm.Normalize(once), "input %q", in)
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/x/y", urlnorm.Path("http://a.com/x/y"))
	assert.Equal(t, "", urlnorm.Path("http://a.com"))
}
