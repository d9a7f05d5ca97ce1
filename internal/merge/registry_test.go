package merge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

func TestRegistry(t *testing.T) {
	assert := assert_.New(t)
	r := NewRegistry()

	r.Create("a")
	assert.Equal(1, r.Len())
	assert.Empty(r.Complete())
	assert.Len(r.Incomplete(), 1)

	date := time.Unix(1000, 0)
	s := r.SetPart("a", downloader.MergeRoleVideo, "/v.mp4", date)
	assert.False(s.Complete())
	s = r.SetPart("a", downloader.MergeRoleAudio, "/a.mp3", time.Time{})
	assert.True(s.Complete())
	assert.Equal(date, s.PostDate, "zero dates do not overwrite")

	r.SetPart("b", downloader.MergeRoleAudio, "/b.mp3", date)
	assert.Len(r.Complete(), 1)
	assert.Len(r.Incomplete(), 1)

	assert.Equal("/b.mp3", r.Incomplete()[0].AudioPath)

	r.Remove("a")
	assert.Equal(1, r.Len())
	assert.Empty(r.Complete())
	r.Clear()
	assert.Equal(0, r.Len())
}

func TestRegistry_ConcurrentHalves(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("set-%d", i)
		for _, role := range []downloader.MergeRole{downloader.MergeRoleVideo, downloader.MergeRoleAudio} {
			wg.Add(1)
			go func(role downloader.MergeRole) {
				defer wg.Done()
				r.SetPart(id, role, id+"."+string(role), time.Time{})
			}(role)
		}
	}
	wg.Wait()
	assert_.Len(t, r.Complete(), 50)
	assert_.Empty(t, r.Incomplete())
}
