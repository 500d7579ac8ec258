package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Olive Oil", "olive-oil"},
		{"  Olive   Oil  ", "olive-oil"},
		{"Olive & Oil!", "olive-oil"},
		{"Ürün Adı", "ürün-adı"},
		{"100% Natural", "100-natural"},
		{"---", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.name), "input %q", tc.name)
	}
}

func TestSlugifyTruncatesLongNames(t *testing.T) {
	slug := Slugify(strings.Repeat("a", 80))
	assert.Len(t, slug, 50)

	// Truncation never leaves a trailing hyphen.
	slug = Slugify(strings.Repeat("a", 49) + " bcd")
	assert.Equal(t, strings.Repeat("a", 49), slug)
}

func TestResolveSlugAppendsCounter(t *testing.T) {
	taken := map[string]bool{"olive-oil": true, "olive-oil_1": true}
	exists := func(_ context.Context, slug string) (bool, error) {
		return taken[slug], nil
	}

	slug, err := ResolveSlug(context.Background(), "Olive Oil", exists)
	require.NoError(t, err)
	assert.Equal(t, "olive-oil_2", slug)
}

func TestResolveSlugNoCollision(t *testing.T) {
	exists := func(_ context.Context, _ string) (bool, error) { return false, nil }

	slug, err := ResolveSlug(context.Background(), "Fresh Basil", exists)
	require.NoError(t, err)
	assert.Equal(t, "fresh-basil", slug)
}
