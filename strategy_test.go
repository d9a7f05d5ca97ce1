package downloader

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/generic"
)

func nopStrategy(name string) Strategy {
	return StrategyFunc(func(ctx context.Context, sub *Submission) ([]Item, error) {
		return []Item{{URL: sub.URL, Title: name}}, nil
	})
}

func TestRegistry(t *testing.T) {
	assert := assert_.New(t)

	r := Registry{}
	assert.Empty(r.List())
	assert.ErrorIs(r.Add(Extractor{Name: "a"}), ErrInvalidExtractor)
	assert.NoError(r.Add(Extractor{Name: "a", Keys: []string{"example.com"}, Strategy: nopStrategy("a")}))
	assert.NoError(r.Add(Extractor{Name: "b", Keys: []string{"Example.COM/b"}, Strategy: nopStrategy("b"), Priority: -1}))
	assert.NoError(r.Add(Extractor{Name: "c", Keys: []string{"example.com"}, Strategy: nopStrategy("c")}))
	assert.ErrorIs(r.Add(Extractor{Name: "a", Keys: []string{"x"}, Strategy: nopStrategy("a")}), ErrDuplicateExtractor)
	assert.Equal([]string{"b", "a", "c"}, r.List())

	m, err := r.Resolve("https://EXAMPLE.com/b/1")
	assert.NoError(err)
	assert.Equal("b", m.Name)
	m, err = r.Resolve("https://example.com/c/1")
	assert.NoError(err)
	assert.Equal("a", m.Name, "equal priorities keep insertion order")

	assert.NoError(r.SetPriority("c", PriorityHighest))
	m, err = r.Resolve("https://example.com/b")
	assert.NoError(err)
	assert.Equal("c", m.Name)
	p, err := r.GetPriority("c")
	assert.NoError(err)
	assert.Equal(PriorityHighest, p)
	_, err = r.GetPriority("nope")
	assert.ErrorIs(err, ErrUnknownExtractor)
	assert.ErrorIs(r.SetPriority("nope", 0), ErrUnknownExtractor)
}

func TestRegistry_Fallback(t *testing.T) {
	assert := assert_.New(t)

	r := Registry{}
	r.MustAdd(Extractor{Name: "site", Keys: []string{"site.com"}, Strategy: nopStrategy("site")})
	_, err := r.Resolve("https://cdn.other.net/pic.jpg")
	assert.True(IsKind(err, KindUnsupportedDomain), "no fallback configured")

	r.SetFallback("direct", nopStrategy("direct"), generic.NewSet("jpg", "mp4"))
	assert.Equal([]string{"site", "direct"}, r.List())

	m, err := r.Resolve("https://cdn.other.net/pic.JPG?x=1")
	assert.NoError(err)
	assert.Equal("direct", m.Name)
	m, err = r.Resolve("https://site.com/pic.jpg")
	assert.NoError(err)
	assert.Equal("site", m.Name, "keyed extractors win over the extension fallback")

	_, err = r.Resolve("https://cdn.other.net/page.html")
	assert.ErrorIs(err, ErrUnsupportedDomain)
	_, err = r.Resolve("https://cdn.other.net/")
	assert.ErrorIs(err, ErrUnsupportedDomain)
}
