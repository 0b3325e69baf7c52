package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

const (
	maxProjectSlug = 150
	maxSafeURLSlug = 50

	// urlHashLen is the number of hex digits of the URL hash appended to
	// slugs that would otherwise drop part of the URL.
	urlHashLen = 8
)

// ProjectSlug names a case study's report file: host with dots replaced,
// followed by the path with slashes replaced. URLs with a query or fragment,
// and those too long for the slug, get a hash of the full URL appended so
// distinct URLs never share a slug.
func ProjectSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return hashedSlug(SafeURLSlug(rawURL), rawURL, maxProjectSlug)
	}
	slug := strings.ReplaceAll(u.Host, ".", "_") + strings.ReplaceAll(u.Path, "/", "_")
	if u.RawQuery != "" || u.Fragment != "" || len(slug) > maxProjectSlug {
		return hashedSlug(slug, rawURL, maxProjectSlug)
	}
	return slug
}

// SafeURLSlug names a screenshot file: the URL without its scheme, with
// slashes replaced, cut to a readable prefix and followed by a hash of the
// full URL.
func SafeURLSlug(rawURL string) string {
	s := strings.TrimPrefix(rawURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	return hashedSlug(strings.ReplaceAll(s, "/", "_"), rawURL, maxSafeURLSlug)
}

// URLHash is a short stable digest of rawURL.
func URLHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:urlHashLen]
}

// hashedSlug cuts slug so that it and the "_<hash>" suffix fit in n bytes.
func hashedSlug(slug, rawURL string, n int) string {
	return truncate(slug, n-urlHashLen-1) + "_" + URLHash(rawURL)
}

// PlatformDomain names a job's main report file.
func PlatformDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "portfolio"
	}
	return strings.ReplaceAll(u.Host, ".", "_")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
