package ranker

import (
	"strconv"
	"strings"
)

// SkillOverlap counts resume skills that appear (case-insensitively) anywhere
// in the job's free-text skills field. Skills are expected to be lowercase
// and deduplicated already; empty entries never match.
func SkillOverlap(resumeSkills []string, jobSkills string) int {
	if len(resumeSkills) == 0 || jobSkills == "" {
		return 0
	}
	haystack := strings.ToLower(jobSkills)
	n := 0
	for _, s := range resumeSkills {
		if s == "" {
			continue
		}
		if strings.Contains(haystack, s) {
			n++
		}
	}
	return n
}

// ExperienceMatches reports whether the resume's years of experience appear
// in the job's experience level text, e.g. 3 in "3-5 years".
func ExperienceMatches(years *int, experienceLevel string) bool {
	if years == nil || *years <= 0 {
		return false
	}
	return strings.Contains(experienceLevel, strconv.Itoa(*years))
}
