package extract_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/recommender-service/internal/extract"
)

func TestSkillsMatchesPhrasesOnTokenBoundaries(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"Python", "SQL", "machine learning", "node.js", "c++", "go"})

	got := e.Skills("Experienced with Python, SQL and Machine Learning. Also C++ and Node.js (backend). Good at algorithms.")
	assert.Equal(t, []string{"c++", "machine learning", "node.js", "python", "sql"}, got)
}

func TestSkillsScansOnlyAfterSkillsHeading(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"python", "java"})

	text := "Summary: I used Java long ago.\nSKILLS\nPython"
	assert.Equal(t, []string{"python"}, e.Skills(text))
}

func TestSkillsSectionIsBounded(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"python", "rust"})

	text := "skills: python " + strings.Repeat("x", 2000) + " rust"
	assert.Equal(t, []string{"python"}, e.Skills(text))
}

func TestSkillsDropsSingleCharacterSkills(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"c", "r", "go"})
	assert.Equal(t, []string{"go"}, e.Skills("skills: C, R, Go"))
}

func TestSkillsDeduplicates(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"docker"})
	assert.Equal(t, []string{"docker"}, e.Skills("Docker docker DOCKER"))
}

func TestSkillsNoMatches(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"docker"})
	got := e.Skills("nothing relevant")
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestExperienceYears(t *testing.T) {
	cases := []struct {
		text string
		want *int
	}{
		{"5+ years of backend work", intp(5)},
		{"3 yrs in QA, 7 years overall", intp(7)},
		{"Experience: 4", intp(4)},
		{"over 10 years", intp(10)},
		{"fresh graduate", nil},
	}
	for _, c := range cases {
		got := extract.ExperienceYears(c.text)
		if c.want == nil {
			assert.Nil(t, got, c.text)
			continue
		}
		require.NotNil(t, got, c.text)
		assert.Equal(t, *c.want, *got, c.text)
	}
}

func TestExtractBuildsProfile(t *testing.T) {
	e := extract.NewDictionaryExtractor([]string{"python", "sql"})
	p := e.Extract("Data engineer with 6 years experience.\nSkills: Python, SQL")

	assert.Equal(t, []string{"python", "sql"}, p.Skills)
	require.NotNil(t, p.ExperienceYears)
	assert.Equal(t, 6, *p.ExperienceYears)
	assert.Nil(t, p.Embedding)
}

func TestNewDefaultExtractorBuiltinList(t *testing.T) {
	e, err := extract.NewDefaultExtractor("")
	require.NoError(t, err)
	assert.Contains(t, e.Skills("skills: kubernetes, postgresql"), "kubernetes")
}

func TestNewDefaultExtractorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.txt")
	require.NoError(t, os.WriteFile(path, []byte("Elixir\n\n  Phoenix \n"), 0o644))

	e, err := extract.NewDefaultExtractor(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"elixir", "phoenix"}, e.Skills("Elixir and Phoenix"))

	_, err = extract.NewDefaultExtractor(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", extract.CleanText("a\t\x00b\n\n  cé"))
}

func intp(v int) *int { return &v }
