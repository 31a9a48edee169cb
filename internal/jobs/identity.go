package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DeriveID builds the opaque identifier of a posting from its defining
// attributes. Attributes are NFKC-normalised, case-folded and
// whitespace-collapsed first, so cosmetic differences between fetches map to
// the same identifier.
func DeriveID(company, title, location, url string) string {
	parts := []string{
		normalizeAttr(company),
		normalizeAttr(title),
		normalizeAttr(location),
		strings.TrimSpace(url),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

func normalizeAttr(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

var postedDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParsePostedDate parses a source-reported posting date. Unix timestamps in
// seconds or milliseconds are accepted too. Empty or unparseable input
// reports false and must be treated as "no date".
func ParsePostedDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range postedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
