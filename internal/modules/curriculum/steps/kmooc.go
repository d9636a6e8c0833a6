package steps

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
)

// CourseSummary is what can be recovered from a K-MOOC summary blob.
type CourseSummary struct {
	Title       string
	Description string
	Duration    string
	Difficulty  string
	ClassTime   string
}

func summaryField(labels string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[\s#>*\-•]*\**\s*(?:` + labels + `)\s*\**\s*[:：]\s*(.+?)\s*$`)
}

var (
	summaryTitleRE       = summaryField(`강좌명|강좌 명|제목|title|course`)
	summaryDescriptionRE = summaryField(`강좌 소개|소개|설명|개요|description|summary`)
	summaryDurationRE    = summaryField(`학습 기간|강좌 기간|기간|duration|period`)
	summaryDifficultyRE  = summaryField(`난이도|수준|difficulty|level`)
	summaryClassTimeRE   = summaryField(`수업 시간|학습 시간|주당 학습 시간|class time|study time`)
)

// ParseCourseSummary pulls labelled fields out of a markdown-ish summary. Missing
// labels leave fields empty.
func ParseCourseSummary(text string) CourseSummary {
	return CourseSummary{
		Title:       summaryValue(summaryTitleRE, text),
		Description: summaryValue(summaryDescriptionRE, text),
		Duration:    summaryValue(summaryDurationRE, text),
		Difficulty:  summaryValue(summaryDifficultyRE, text),
		ClassTime:   summaryValue(summaryClassTimeRE, text),
	}
}

func summaryValue(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Trim(m[1], "*_` "))
}

// CourseResource turns a K-MOOC vector hit into a video resource.
func CourseResource(hit vectorsearch.Hit) state.Resource {
	meta := hit.Metadata
	summary := metaString(meta, "summary")
	parsed := ParseCourseSummary(summary)
	title := orDefault(parsed.Title, orDefault(metaString(meta, "title", "course_name", "name"), hit.ID))
	desc := parsed.Description
	if desc == "" {
		desc = truncateRunes(metaString(meta, "description"), 300)
	}
	return state.Resource{
		Title:       title,
		URL:         metaString(meta, "url", "course_url", "link"),
		Description: desc,
		Source:      "kmooc",
		Type:        "video",
		Score:       hit.Score,
		Duration:    orDefault(parsed.Duration, metaString(meta, "duration")),
		Difficulty:  orDefault(parsed.Difficulty, metaString(meta, "difficulty")),
		ClassTime:   orDefault(parsed.ClassTime, metaString(meta, "class_time")),
		Content:     truncateRunes(strings.TrimSpace(summary), 2000),
	}
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := meta[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
