package conduit

import (
	"regexp"
	"strings"
	"unicode"
)

var suffixRe = regexp.MustCompile(`-\d+$`)

// Slugify derives the slug base Conduit uses for a title: lowercase,
// punctuation removed, runs of whitespace joined by single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "-")
}

// SlugBase drops the trailing numeric uniqueness suffix of a slug.
func SlugBase(slug string) string {
	return suffixRe.ReplaceAllString(slug, "")
}

// SlugMatchesTitle reports whether slug was derived from title. Case is
// ignored because the service does not always lowercase.
func SlugMatchesTitle(title, slug string) bool {
	return strings.EqualFold(SlugBase(slug), Slugify(title))
}
