package direct

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

func TestExtract(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	c := NewConfig()

	items, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://i.example.com/cat.JPG", Title: "Cat"})
	require.NoError(err)
	require.Len(items, 1)
	assert.Equal(downloader.Item{URL: "https://i.example.com/cat.JPG", Title: "Cat", Extension: "jpg"}, items[0])

	items, err = c.Extract(context.Background(), &downloader.Submission{URL: "https://i.imgur.com/abc.gifv"})
	require.NoError(err)
	assert.Equal("https://i.imgur.com/abc.mp4", items[0].URL)
	assert.Equal("mp4", items[0].Extension)
}

func TestExtract_Rejects(t *testing.T) {
	assert := assert_.New(t)
	c := NewConfig()

	for _, u := range []string{"ftp://example.com/a.jpg", "https://example.com/page.html", "https://example.com/"} {
		_, err := c.Extract(context.Background(), &downloader.Submission{URL: u})
		assert.True(downloader.IsKind(err, downloader.KindUnsupportedDomain), u)
	}
}

func TestRegister(t *testing.T) {
	assert := assert_.New(t)
	r := downloader.Registry{}
	NewConfig().Register(&r)
	m, err := r.Resolve("https://cdn.example.com/a/b/photo.png")
	assert.NoError(err)
	assert.Equal(Name, m.Name)
}
