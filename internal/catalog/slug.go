package catalog

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// maxSlugLen bounds the base slug before any collision suffix is appended.
const maxSlugLen = 50

// Slugify lowercases the name and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// ResolveSlug derives a unique slug from name by appending _1, _2, ... until
// exists reports false. exists is typically a store lookup, but the bulk
// importer composes it with an in-batch check so two rows in the same batch
// cannot claim the same slug.
func ResolveSlug(ctx context.Context, name string, exists func(context.Context, string) (bool, error)) (string, error) {
	base := Slugify(name)
	slug := base
	for counter := 1; ; counter++ {
		taken, err := exists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s_%d", base, counter)
	}
}
