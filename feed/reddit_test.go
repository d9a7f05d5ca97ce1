package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const listingPage1 = `{"kind":"Listing","data":{"after":"t3_b","children":[
	{"kind":"t3","data":{"id":"a","title":"First &amp; best","url":"https://i.redd.it/a.jpg","permalink":"/r/pics/comments/a/","author":"alice","subreddit":"pics","created_utc":1200,"score":10,"over_18":false,"stickied":true}},
	{"kind":"t3","data":{"id":"b","title":"Video","url":"https://v.redd.it/b","author":"bob","subreddit":"pics","created_utc":1100,"secure_media":{"reddit_video":{"fallback_url":"https://v.redd.it/b/DASH_720.mp4"}}}}
]}}`

const listingPage2 = `{"kind":"Listing","data":{"after":"","children":[
	{"kind":"t3","data":{"id":"c","title":"Gallery","url":"https://www.reddit.com/gallery/c","created_utc":900,"gallery_data":{"items":[{"media_id":"m1"},{"media_id":"m2"}]},"media_metadata":{"m1":{"m":"image/png"}}}},
	{"kind":"t3","data":{"id":"d","title":"Self","is_self":true,"selftext_html":"&lt;a href=\"https://example.com/x.jpg\"&gt;x&lt;/a&gt;","created_utc":800}}
]}}`

func newRedditServer(t *testing.T) (*httptest.Server, *[]string) {
	var requests []string
	mux := http.NewServeMux()
	mux.HandleFunc("/r/pics/new.json", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		if r.URL.Query().Get("after") == "t3_b" {
			fmt.Fprint(w, listingPage2)
		} else {
			fmt.Fprint(w, listingPage1)
		}
	})
	mux.HandleFunc("/r/pics/about.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"t5","data":{}}`)
	})
	mux.HandleFunc("/user/banned/about.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"t2","data":{"is_suspended":true}}`)
	})
	mux.HandleFunc("/user/flaky/about.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func collect(t *testing.T, s Source, q Query, stopAfter int) []*downloader.Submission {
	var subs []*downloader.Submission
	err := s.Submissions(context.Background(), q, func(sub *downloader.Submission) bool {
		subs = append(subs, sub)
		return stopAfter == 0 || len(subs) < stopAfter
	})
	require_.NoError(t, err)
	return subs
}

func TestReddit_Submissions(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	server, requests := newRedditServer(t)
	r := NewReddit(server.URL, server.Client())

	subs := collect(t, r, Query{Name: "pics", Kind: downloader.TargetKindSubreddit, Sort: "new", Limit: 10}, 0)
	require.Len(subs, 4)
	assert.Len(*requests, 2)

	assert.Equal("First & best", subs[0].Title)
	assert.True(subs[0].Stickied)
	assert.Equal(int64(1200), subs[0].Created.Unix())
	assert.Equal(server.URL+"/r/pics/comments/a/", subs[0].Permalink)
	assert.Equal("https://v.redd.it/b/DASH_720.mp4", subs[1].VideoFallbackURL)
	assert.Equal([]downloader.GalleryItem{{MediaID: "m1", Extension: "png"}, {MediaID: "m2", Extension: "jpg"}}, subs[2].GalleryItems)
	assert.True(subs[3].IsSelf)
	assert.Equal(`<a href="https://example.com/x.jpg">x</a>`, subs[3].SelfTextHTML)
}

func TestReddit_Submissions_Limits(t *testing.T) {
	assert := assert_.New(t)
	server, requests := newRedditServer(t)
	r := NewReddit(server.URL, server.Client())

	subs := collect(t, r, Query{Name: "pics", Kind: downloader.TargetKindSubreddit, Limit: 2}, 0)
	assert.Len(subs, 2)
	assert.Len(*requests, 1, "limit reached on the first page")

	*requests = nil
	subs = collect(t, r, Query{Name: "pics", Kind: downloader.TargetKindSubreddit, Limit: 10}, 1)
	assert.Len(subs, 1)
	assert.Len(*requests, 1, "visit stopped the enumeration")
}

func TestReddit_Validate(t *testing.T) {
	assert := assert_.New(t)
	server, _ := newRedditServer(t)
	r := NewReddit(server.URL, server.Client())

	assert.NoError(r.Validate(context.Background(), Query{Name: "pics", Kind: downloader.TargetKindSubreddit}))

	err := r.Validate(context.Background(), Query{Name: "missing", Kind: downloader.TargetKindUser})
	assert.True(downloader.IsKind(err, downloader.KindValidation), "404 marks the target invalid")

	err = r.Validate(context.Background(), Query{Name: "banned", Kind: downloader.TargetKindUser})
	assert.ErrorIs(err, downloader.ErrValidation)

	err = r.Validate(context.Background(), Query{Name: "flaky", Kind: downloader.TargetKindUser})
	assert.True(downloader.IsKind(err, downloader.KindConnection), "server errors are transient")
}

func TestReddit_Connection(t *testing.T) {
	server, _ := newRedditServer(t)
	r := NewReddit(server.URL, server.Client())
	server.Close()
	err := r.Submissions(context.Background(), Query{Name: "pics", Kind: downloader.TargetKindSubreddit}, func(*downloader.Submission) bool { return true })
	assert_.True(t, downloader.IsKind(err, downloader.KindConnection))
}

func TestMux(t *testing.T) {
	server, _ := newRedditServer(t)
	m := Mux{downloader.TargetKindSubreddit: NewReddit(server.URL, server.Client())}
	assert_.NoError(t, m.Validate(context.Background(), Query{Name: "pics", Kind: downloader.TargetKindSubreddit}))
	assert_.Error(t, m.Validate(context.Background(), Query{Name: "x", Kind: downloader.TargetKindFeed}))
}
