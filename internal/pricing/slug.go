package pricing

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Latin letters with no canonical decomposition, so stripping marks alone
// would drop them.
var letterFolds = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
	"þ", "th", "Þ", "th",
	"ð", "d", "Ð", "d",
)

// Slugify lower-cases s, folds accented Latin letters to ASCII and collapses
// every other run of characters into a single hyphen: "Business Cards
// (Premium)" becomes "business-cards-premium", "Café Menus" "cafe-menus".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, letterFolds.Replace(s))
	if err != nil {
		folded = s
	}
	folded = nonSlug.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(folded, "-")
}
