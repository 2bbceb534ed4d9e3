package archive

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// FormatMarker identifies archive files written by this pipeline. Stable
// on-disk convention; do not change.
const FormatMarker = "hermes-chat-archive"

type frontmatter struct {
	Title    string   `yaml:"title"`
	TopicID  string   `yaml:"topic_id"`
	Date     string   `yaml:"date"`
	EndDate  string   `yaml:"end_date"`
	Duration int      `yaml:"duration"`
	Tags     []string `yaml:"tags,flow"`
	Format   string   `yaml:"format"`
	Summary  string   `yaml:"summary"`
}

// renderArchiveFile produces the full file content: YAML frontmatter followed
// by the rendered markdown body.
func renderArchiveFile(meta Metadata, topicID string, start, end time.Time, body string) (string, error) {
	duration := 0
	if !start.IsZero() && !end.IsZero() && end.After(start) {
		duration = int(end.Sub(start).Seconds())
	}
	fm := frontmatter{
		Title:    meta.Title,
		TopicID:  topicID,
		Date:     start.UTC().Format(time.RFC3339),
		EndDate:  end.UTC().Format(time.RFC3339),
		Duration: duration,
		Tags:     meta.Tags,
		Format:   FormatMarker,
		Summary:  meta.Summary,
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}

	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return "---\n" + string(data) + "---\n\n" + body, nil
}
