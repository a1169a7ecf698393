package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/havenops/ric/internal/store"
)

// CanonicalKey normalizes a source reference into the dedupe key for its
// source type. Two references to the same underlying content must map to
// the same key, so URL noise (tracking params, fragments, default ports)
// is stripped.
func CanonicalKey(st store.SourceType, source string) string {
	source = strings.TrimSpace(source)
	switch st {
	case store.SourceYouTube:
		if id := extractYouTubeID(source); id != "" {
			return id
		}
		return normalizeURL(source)
	case store.SourceWeb, store.SourceArticle:
		return normalizeURL(source)
	case store.SourceFile:
		return filepath.Clean(source)
	default:
		if looksLikeURL(source) {
			return normalizeURL(source)
		}
		sum := sha256.Sum256([]byte(source))
		return hex.EncodeToString(sum[:16])
	}
}

var (
	youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// Path forms that carry the video id as the next segment.
	youtubePathPattern = regexp.MustCompile(`/(?:shorts|embed|live)/([A-Za-z0-9_-]{11})(?:[/?#]|$)`)

	youtubeShortHostPattern = regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})(?:[/?#]|$)`)
)

// extractYouTubeID pulls the 11-character video id out of any common URL
// shape. Bare ids pass through. Returns "" when no id is found.
func extractYouTubeID(source string) string {
	if youtubeIDPattern.MatchString(source) {
		return source
	}

	if m := youtubeShortHostPattern.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	if m := youtubePathPattern.FindStringSubmatch(source); m != nil {
		return m[1]
	}

	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); youtubeIDPattern.MatchString(v) {
		return v
	}
	return ""
}

// trackingParams are query parameters that never change the content behind
// a URL.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
}

// normalizeURL canonicalizes scheme, host, port, path, and query. Inputs
// that do not parse as URLs are returned trimmed but otherwise untouched.
func normalizeURL(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return source
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host

	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	query := u.Query()
	for param := range query {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			query.Del(param)
		}
	}
	// Deterministic parameter order regardless of the input.
	u.RawQuery = encodeSorted(query)

	return u.String()
}

func encodeSorted(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func looksLikeURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
