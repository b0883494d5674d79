// Package extract derives the structured part of a resume profile from plain
// resume text: a normalized skill set and years of experience.
package extract

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"jobmate/recommender-service/internal/model"
)

// skillSectionLen bounds how much text after a "skills" heading is scanned.
const skillSectionLen = 1500

//go:embed skills.txt
var defaultSkills string

// Extractor turns resume text into a profile. Embedding is left empty; the
// caller fills it from its embeddings provider.
type Extractor interface {
	Extract(text string) model.ResumeProfile
}

var experiencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\+?\s*years`),
	regexp.MustCompile(`(\d+)\+?\s*yrs`),
	regexp.MustCompile(`experience\s*[:\-]?\s*(\d+)`),
	regexp.MustCompile(`over\s*(\d+)\s*years`),
}

var skillClean = regexp.MustCompile(`[^a-zA-Z0-9+.# ]`)

// DictionaryExtractor matches resume tokens against a fixed skill dictionary.
type DictionaryExtractor struct {
	skills   map[string]struct{}
	maxWords int
}

// NewDictionaryExtractor builds an extractor for the given skill phrases.
// Phrases are matched case-insensitively on token boundaries.
func NewDictionaryExtractor(skills []string) *DictionaryExtractor {
	e := &DictionaryExtractor{skills: make(map[string]struct{}, len(skills))}
	for _, s := range skills {
		toks := tokenize(strings.ToLower(s))
		if len(toks) == 0 {
			continue
		}
		e.skills[strings.Join(toks, " ")] = struct{}{}
		e.maxWords = max(e.maxWords, len(toks))
	}
	return e
}

// NewDefaultExtractor uses the skills list at path, or the built-in list when
// path is empty.
func NewDefaultExtractor(path string) (*DictionaryExtractor, error) {
	if path == "" {
		skills, err := ReadSkills(strings.NewReader(defaultSkills))
		if err != nil {
			return nil, err
		}
		return NewDictionaryExtractor(skills), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open skills file: %w", err)
	}
	defer f.Close()

	skills, err := ReadSkills(f)
	if err != nil {
		return nil, fmt.Errorf("read skills file %s: %w", path, err)
	}
	return NewDictionaryExtractor(skills), nil
}

// ReadSkills reads one skill per line, lowercased, skipping blanks.
func ReadSkills(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// Extract implements Extractor.
func (e *DictionaryExtractor) Extract(text string) model.ResumeProfile {
	return model.ResumeProfile{
		Skills:          e.Skills(text),
		ExperienceYears: ExperienceYears(text),
	}
}

// Skills returns the sorted, deduplicated dictionary skills found in text.
// When the text has a "skills" heading only the section after it is scanned.
func (e *DictionaryExtractor) Skills(text string) []string {
	section := strings.ToLower(text)
	if _, after, found := strings.Cut(section, "skills"); found {
		section = truncateRunes(after, skillSectionLen)
	}

	toks := tokenize(section)
	seen := make(map[string]struct{})
	for i := range toks {
		for n := 1; n <= e.maxWords && i+n <= len(toks); n++ {
			phrase := strings.Join(toks[i:i+n], " ")
			if _, ok := e.skills[phrase]; !ok {
				continue
			}
			skill := strings.TrimSpace(skillClean.ReplaceAllString(phrase, ""))
			if len(skill) > 1 {
				seen[skill] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ExperienceYears returns the largest year count mentioned in text, or nil.
func ExperienceYears(text string) *int {
	lower := strings.ToLower(text)
	best, found := 0, false
	for _, re := range experiencePatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if !found || n > best {
				best, found = n, true
			}
		}
	}
	if !found {
		return nil
	}
	return &best
}

// CleanText replaces non-printable ASCII with spaces and collapses runs of
// whitespace.
func CleanText(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return ' '
		}
		return r
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// tokenize splits on anything that cannot be part of a skill name and trims
// sentence punctuation, so "Python." and "(python)" both yield "python".
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("+#./-", r))
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".-/")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
