package redditgallery

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

	items, err := New().Extract(context.Background(), &downloader.Submission{
		URL:   "https://www.reddit.com/gallery/xyz",
		Title: "Album",
		GalleryItems: []downloader.GalleryItem{
			{MediaID: "one", Extension: "png"},
			{MediaID: "two", Extension: ".JPG"},
			{MediaID: "three"},
		},
	})
	require.NoError(err)
	require.Len(items, 3)
	assert.Equal(downloader.Item{URL: "https://i.redd.it/one.png", Title: "Album 1", Extension: "png"}, items[0])
	assert.Equal("https://i.redd.it/two.jpg", items[1].URL)
	assert.Equal("jpg", items[2].Extension)
}

func TestExtract_Empty(t *testing.T) {
	_, err := New().Extract(context.Background(), &downloader.Submission{URL: "https://www.reddit.com/gallery/xyz"})
	assert_.ErrorIs(t, err, ErrEmptyGallery)
}
