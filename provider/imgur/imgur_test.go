package imgur

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/album/abc/images", func(w http.ResponseWriter, r *http.Request) {
		assert_.Equal(t, "Client-ID test-id", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"status":200,"data":[
			{"id":"1","type":"image/png","link":"https://i.imgur.com/1.png"},
			{"id":"2","type":"image/gif","link":"https://i.imgur.com/2.gif","mp4":"https://i.imgur.com/2.mp4"}
		]}`))
	})
	mux.HandleFunc("/image/single", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"status":200,"data":{"id":"single","type":"image/jpeg","link":"https://i.imgur.com/single.jpg"}}`))
	})
	mux.HandleFunc("/image/quota", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-ClientRemaining", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/image/slow", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-ClientRemaining", "120")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestConfig(t *testing.T) *Config {
	c := NewConfig("test-id")
	c.BaseURL = newTestServer(t).URL
	return c
}

func TestExtract_Direct(t *testing.T) {
	assert := assert_.New(t)
	c := NewConfig("")
	items, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://i.imgur.com/xyz.gifv", Title: "T"})
	assert.NoError(err)
	assert.Equal([]downloader.Item{{URL: "https://i.imgur.com/xyz.mp4", Title: "T", Extension: "mp4"}}, items)
}

func TestExtract_Album(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	c := newTestConfig(t)

	items, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/a/abc", Title: "Album"})
	require.NoError(err)
	require.Len(items, 2)
	assert.Equal(downloader.Item{URL: "https://i.imgur.com/1.png", Title: "Album 1", Extension: "png"}, items[0])
	assert.Equal(downloader.Item{URL: "https://i.imgur.com/2.mp4", Title: "Album 2", Extension: "mp4"}, items[1])
}

func TestExtract_Image(t *testing.T) {
	c := newTestConfig(t)
	items, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/single", Title: "One"})
	require_.NoError(t, err)
	assert_.Equal(t, []downloader.Item{{URL: "https://i.imgur.com/single.jpg", Title: "One", Extension: "jpg"}}, items)
}

func TestExtract_RateLimit(t *testing.T) {
	assert := assert_.New(t)
	c := newTestConfig(t)

	_, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/quota"})
	var limited *downloader.RateLimitError
	require_.ErrorAs(t, err, &limited)
	assert.True(limited.QuotaExhausted)
	assert.True(downloader.IsKind(err, downloader.KindRateLimit))

	_, err = c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/slow"})
	require_.ErrorAs(t, err, &limited)
	assert.False(limited.QuotaExhausted)
	assert.Equal(30*time.Second, limited.RetryAfter)
}

func TestExtract_Errors(t *testing.T) {
	assert := assert_.New(t)
	c := newTestConfig(t)

	_, err := c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/missing"})
	var status *downloader.StatusError
	assert.ErrorAs(err, &status)
	assert.Equal(404, status.Code)

	_, err = NewConfig("").Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/a/abc"})
	assert.ErrorIs(err, ErrNoClientID)

	_, err = c.Extract(context.Background(), &downloader.Submission{URL: "https://imgur.com/"})
	assert.True(downloader.IsKind(err, downloader.KindUnsupportedDomain))
}
