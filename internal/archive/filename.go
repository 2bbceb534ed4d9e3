package archive

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxSlugLen = 60

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a suggested filename into lowercase kebab-case.
func Slug(s string) string {
	slug := slugStripRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "chat"
	}
	return slug
}

// nextArchiveName computes the per-day sequential archive path:
// <folder>/<YYYY-MM-DD>-<NN>-<slug>.md where NN is max(existing)+1 for
// today's date prefix, starting at 01.
func nextArchiveName(folder string, day time.Time, existing []string, slug string) string {
	date := day.Format("2006-01-02")
	prefix := folder + "/" + date + "-"
	seqRe := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d{2,})-`)

	maxSeq := 0
	for _, path := range existing {
		m := seqRe.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return fmt.Sprintf("%s%02d-%s.md", prefix, maxSeq+1, slug)
}
