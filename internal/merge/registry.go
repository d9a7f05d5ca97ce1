// Package merge tracks reddit-hosted videos downloaded as separate video and audio parts, and joins them.
package merge

import (
	"sort"
	"sync"
	"time"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

type Set struct {
	ID        string
	VideoPath string
	AudioPath string
	PostDate  time.Time
	CreatedAt time.Time
}

// Complete is true once both parts have been downloaded.
func (s *Set) Complete() bool {
	return s.VideoPath != "" && s.AudioPath != ""
}

// Registry is the set of in-flight merge sets for one session, safe for concurrent use by download workers.
type Registry struct {
	mu   sync.Mutex
	sets map[string]*Set
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*Set)}
}

func (r *Registry) getOrCreate(id string) *Set {
	s, ok := r.sets[id]
	if !ok {
		s = &Set{ID: id, CreatedAt: time.Now()}
		r.sets[id] = s
	}
	return s
}

// Create ensures a set exists for id.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getOrCreate(id)
}

// SetPart records a downloaded part, creating the set on first sight. It returns a copy of the set after the update.
func (r *Registry) SetPart(id string, role downloader.MergeRole, path string, postDate time.Time) Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(id)
	switch role {
	case downloader.MergeRoleVideo:
		s.VideoPath = path
	case downloader.MergeRoleAudio:
		s.AudioPath = path
	}
	if !postDate.IsZero() {
		s.PostDate = postDate
	}
	return *s
}

func (r *Registry) snapshot(complete bool) []Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Set, 0, len(r.sets))
	for _, s := range r.sets {
		if s.Complete() == complete {
			res = append(res, *s)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt) || (res[i].CreatedAt.Equal(res[j].CreatedAt) && res[i].ID < res[j].ID)
	})
	return res
}

// Complete returns copies of the sets with both parts present.
func (r *Registry) Complete() []Set {
	return r.snapshot(true)
}

// Incomplete returns copies of the sets still missing a part.
func (r *Registry) Incomplete() []Set {
	return r.snapshot(false)
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[string]*Set)
}
