package downloader

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"
)

func TestNaming(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)

	n, err := NewNaming("{{.TargetName}}/{{.Subreddit}}", "{{.Date}} {{.Title}}")
	require.NoError(err)
	sub := &Submission{ID: "abc", Subreddit: "pics", Created: time.Date(2022, 3, 4, 12, 0, 0, 0, time.UTC)}
	args := NewNamingArgs("someone", TargetKindUser, sub, `a/b: "c"?`)

	dir, err := n.Directory("/downloads", &args)
	require.NoError(err)
	assert.Equal(filepath.Join("/downloads", "someone", "pics"), dir)

	name, err := n.FileName(&args, "")
	require.NoError(err)
	assert.Equal("2022-03-04 ab c", name)
}

func TestNaming_Defaults(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)

	n, err := NewNaming("", "")
	require.NoError(err)
	args := NewNamingArgs("target", TargetKindSubreddit, &Submission{ID: "xyz"}, "...")
	name, err := n.FileName(&args, "")
	require.NoError(err)
	assert.Equal("xyz", name, "empty title falls back to the submission id")
	dir, err := n.Directory("root", &args)
	require.NoError(err)
	assert.Equal(filepath.Join("root", "target"), dir)
}

func TestNewNaming_Invalid(t *testing.T) {
	_, err := NewNaming("{{.TargetName", "")
	assert_.Error(t, err)
}

func TestSanitizeFileName(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("hello world", SanitizeFileName("  hello   world. "))
	assert.Equal("ab", SanitizeFileName("a|b"))
	assert.Equal("", SanitizeFileName(".."))
}

func TestSanitizeFileName_Length(t *testing.T) {
	assert := assert_.New(t)

	long := SanitizeFileName(strings.Repeat("猫", 150))
	assert.LessOrEqual(len(long), MaxFileNameBytes)
	assert.True(utf8.ValidString(long), "truncation keeps whole characters")
	assert.Equal(strings.Repeat("猫", MaxFileNameBytes/3), long)

	assert.Equal(strings.Repeat("a", MaxFileNameBytes), SanitizeFileName(strings.Repeat("a", 250)))
}

func TestNaming_FileNameSuffix(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)

	n, err := NewNaming("", "")
	require.NoError(err)
	for _, title := range []string{strings.Repeat("a", 250), strings.Repeat("猫", 150), "short"} {
		args := NewNamingArgs("target", TargetKindUser, &Submission{ID: "id"}, title)
		name, err := n.FileName(&args, " (video)")
		require.NoError(err)
		assert.True(strings.HasSuffix(name, " (video)"), name)
		assert.LessOrEqual(len(name), MaxFileNameBytes)
		assert.True(utf8.ValidString(name))
	}

	args := NewNamingArgs("target", TargetKindUser, &Submission{ID: "id"}, "")
	name, err := n.FileName(&args, " (audio)")
	require.NoError(err)
	assert.Equal("id (audio)", name)
}
