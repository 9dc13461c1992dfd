// Package cachekey derives deterministic, filesystem-safe cache identifiers
// for search queries and site icons.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SitesKey is the cache key of the site catalog.
const SitesKey = "all-sites"

// hashLen is the number of hex characters of the digest kept in a key.
const hashLen = 12

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\-_;.]`)
	dashes     = regexp.MustCompile(`-+`)
)

// Derive returns the cache key for a search of siteID with free text and
// tags. Tag order is significant.
func Derive(siteID, text string, tags []string) string {
	s := text
	if len(tags) > 0 {
		s += "_" + strings.Join(tags, "+")
	}
	slug := disallowed.ReplaceAllString(strings.ToLower(asciify(s)), "-") + "-" + Hash(s)
	return "search/" + siteID + "/" + dashes.ReplaceAllString(slug, "-")
}

// Hash returns a short hex digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// asciify decomposes s and drops everything outside ASCII, so accented
// letters degrade to their base letter.
func asciify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}

// IconPath returns the location of a site's icon under dir. The answered
// variant carries the check-mark overlay.
func IconPath(dir, siteID string, answered bool) string {
	name := siteID
	if answered {
		name += "-answered"
	}
	return filepath.Join(dir, "icons", name+".png")
}
