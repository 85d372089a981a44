// Package digest renders the weekly digest and delivers it: as a markdown
// report on disk and, when configured, as a Telegram message.
package digest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/storage"
)

// ReportFile is the weekly report file name inside the reports directory.
const ReportFile = "weekly_summary.md"

// RenderMarkdown renders the digest as the weekly markdown report.
func RenderMarkdown(d domain.WeeklyDigest) string {
	lines := []string{
		"# Weekly Summary (last 7 days)\n",
		fmt.Sprintf("Items collected: **%d**\n", d.ItemCount),
	}

	if len(d.Themes) > 0 {
		lines = append(lines, "## Emerging themes\n")
		for _, t := range d.Themes {
			lines = append(lines, fmt.Sprintf("- **%s** × %d", t.Name, t.Count))
		}

		lines = append(lines, "")
	}

	if len(d.Highlights) > 0 {
		lines = append(lines, "## Highlights\n")
		for _, h := range d.Highlights {
			lines = append(lines, fmt.Sprintf("- [%s](%s) — %s (score %s)", h.Title, h.URL, h.Source, FormatScore(h.Score)))
		}
	}

	return strings.Join(lines, "\n")
}

// FormatScore prints a score with the shortest exact representation,
// always keeping one decimal place.
func FormatScore(score float64) string {
	s := strconv.FormatFloat(score, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}

// WriteReport writes the markdown report into dir and returns its path.
func WriteReport(dir string, d domain.WeeklyDigest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	path := filepath.Join(dir, ReportFile)
	if err := storage.WriteFileAtomic(path, []byte(RenderMarkdown(d))); err != nil {
		return "", fmt.Errorf("write weekly report: %w", err)
	}

	return path, nil
}
