package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Business Cards":         "business-cards",
		"  Flyers & Leaflets  ":  "flyers-leaflets",
		"Roller Banners (850mm)": "roller-banners-850mm",
		"Café Menüs":             "cafe-menus",
		"Øresund Posters":        "oresund-posters",
		"Straße Signs":           "strasse-signs",
		"Œuvre Łódź":             "oeuvre-lodz",
		"--already-a-slug--":     "already-a-slug",
		"!!!":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	for _, in := range []string{"Business Cards", "A5 Flyers – 170gsm", "Posters/Prints", "x"} {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), in)
	}
}
