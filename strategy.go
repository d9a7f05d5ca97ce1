package downloader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/util"
)

var (
	ErrDuplicateExtractor = errors.New("duplicate extractor name")
	ErrInvalidExtractor   = errors.New("invalid extractor")
	ErrUnknownExtractor   = errors.New("unknown extractor")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// MergeRole marks an Item as one half of a video that must be reassembled after download.
type MergeRole string

const (
	MergeRoleNone  MergeRole = ""
	MergeRoleVideo MergeRole = "video"
	MergeRoleAudio MergeRole = "audio"
)

// An Item is one downloadable file extracted from a submission.
type Item struct {
	URL       string
	Title     string
	Extension string
	// Suffix is appended to the file name after it has been rendered and truncated.
	Suffix string
	// MergeID groups the video and audio parts of one logical video.
	MergeID   string
	MergeRole MergeRole
}

// A Strategy turns a submission into the items it links to.
type Strategy interface {
	Extract(ctx context.Context, sub *Submission) ([]Item, error)
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(ctx context.Context, sub *Submission) ([]Item, error)

func (f StrategyFunc) Extract(ctx context.Context, sub *Submission) ([]Item, error) {
	return f(ctx, sub)
}

// An Extractor claims any URL containing one of its Keys, case-insensitively.
type Extractor struct {
	Name     string
	Keys     []string
	Strategy Strategy
	// Priority of the extractor, lower (including negative) means matching earlier.
	Priority int16
}

func (e Extractor) WithPriority(priority int16) Extractor {
	e.Priority = priority
	return e
}

func (e *Extractor) matches(lowerURL string) bool {
	for _, key := range e.Keys {
		if strings.Contains(lowerURL, strings.ToLower(key)) {
			return true
		}
	}
	return false
}

// A Match is the result of resolving a URL to an Extractor.
type Match struct {
	Name     string
	Strategy Strategy
}

// A Registry is an ordered collection of Extractor instances, with an optional fallback for direct media links.
type Registry struct {
	extractors   []*Extractor
	extractorMap map[string]*Extractor
	fallback     *Extractor
	extensions   generic.Set[string]
}

// Add registers an Extractor. Name, Keys and Strategy must be set, and Name must be unique within the Registry.
func (r *Registry) Add(e Extractor) error {
	if r.extractorMap == nil {
		r.extractorMap = make(map[string]*Extractor)
	}
	if e.Name == "" || len(e.Keys) == 0 || e.Strategy == nil {
		return ErrInvalidExtractor
	}
	if _, ok := r.extractorMap[e.Name]; ok {
		return ErrDuplicateExtractor
	}
	r.extractorMap[e.Name] = &e
	r.extractors = append(r.extractors, r.extractorMap[e.Name])
	r.sortByPriority()
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *Registry) MustAdd(e Extractor) {
	generic.Unwrap_(r.Add(e))
}

// SetFallback sets the strategy used for URLs no extractor claims but whose file extension is one of extensions.
func (r *Registry) SetFallback(name string, s Strategy, extensions generic.Set[string]) {
	r.fallback = &Extractor{Name: name, Strategy: s, Priority: PriorityLowest}
	r.extensions = extensions
}

// GetPriority gets the priority of the named Extractor. If ErrUnknownExtractor is returned, the returned priority is
// the default priority.
func (r *Registry) GetPriority(name string) (int16, error) {
	if e, ok := r.extractorMap[name]; ok {
		return e.Priority, nil
	} else {
		return PriorityDefault, ErrUnknownExtractor
	}
}

// SetPriority adjusts the priority of a named Extractor.
func (r *Registry) SetPriority(name string, priority int16) error {
	if e, ok := r.extractorMap[name]; ok {
		e.Priority = priority
		r.sortByPriority()
		return nil
	} else {
		return ErrUnknownExtractor
	}
}

// List returns the names of registered extractors in priority order, followed by the fallback if set.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.extractors)+1)
	for _, e := range r.extractors {
		names = append(names, e.Name)
	}
	if r.fallback != nil {
		names = append(names, r.fallback.Name)
	}
	return names
}

// Resolve finds the first extractor in priority order whose keys match the URL, falling back to the direct link
// strategy for known media extensions, or returns an ErrUnsupportedDomain error.
func (r *Registry) Resolve(rawURL string) (*Match, error) {
	lower := strings.ToLower(rawURL)
	for _, e := range r.extractors {
		if e.matches(lower) {
			return &Match{Name: e.Name, Strategy: e.Strategy}, nil
		}
	}
	if r.fallback != nil {
		if ext, err := util.ExtensionFromURLString(rawURL); err == nil && r.extensions.Contains(ext) {
			return &Match{Name: r.fallback.Name, Strategy: r.fallback.Strategy}, nil
		}
	}
	return nil, NewError(KindUnsupportedDomain, "resolve", rawURL, fmt.Errorf("%w", ErrUnsupportedDomain))
}

func (r *Registry) sortByPriority() {
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority < r.extractors[j].Priority
	})
}
