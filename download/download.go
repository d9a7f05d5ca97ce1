// Package download fetches a single URL to disk, choosing a free file name at the last moment.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000"
)

const maxNameAttempts = 10000

var ErrNoFreeName = errors.New("no free file name")

type MultiPartConfig struct {
	Enabled bool
	// Threshold is the size in bytes above which a download is split into ranged requests.
	Threshold int64
	Parts     int
}

type Config struct {
	Transport Transport
	MultiPart MultiPartConfig
	// OnBytes is called with the size of every chunk written.
	OnBytes func(n int)
}

type Fetcher struct {
	config Config
}

func NewFetcher(config Config) *Fetcher {
	if config.Transport == nil {
		config.Transport = http.DefaultClient
	}
	if config.MultiPart.Parts < 2 {
		config.MultiPart.Parts = 2
	}
	return &Fetcher{config: config}
}

type Request struct {
	URL       string
	Dir       string
	Name      string
	Extension string
	Hash      bool
}

type Result struct {
	Path      string
	Size      int64
	Hash      string
	MultiPart bool
}

// Fetch downloads req.URL into req.Dir. Nothing is left on disk if it fails, including when ctx is cancelled
// part-way through a write.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (_ *Result, err error) {
	if err := os.MkdirAll(req.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	resp, err := f.get(ctx, req.URL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	temp, err := os.CreateTemp(req.Dir, "."+req.Name+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if temp != nil {
			_ = temp.Close()
			if err != nil {
				_ = os.Remove(temp.Name())
			}
		}
	}()

	result := &Result{}
	if f.useMultiPart(resp) {
		_ = resp.Body.Close()
		result.MultiPart = true
		if err = f.fetchRanges(ctx, req.URL, resp.ContentLength, temp); err != nil {
			return nil, err
		}
		result.Size = resp.ContentLength
	} else {
		body := NewContextReader(ctx, resp.Body)
		if result.Size, err = io.Copy(io.MultiWriter(temp, countingWriter{f.config.OnBytes}), body); err != nil {
			return nil, downloader.ClassifyTransport("download", req.URL, fmt.Errorf("failed to save stream: %w", err))
		}
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	if req.Hash {
		if result.Hash, err = hashFile(temp); err != nil {
			return nil, err
		}
	}
	if err = temp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	tempName := temp.Name()
	temp = nil

	if result.Path, err = ReserveName(req.Dir, req.Name, req.Extension); err != nil {
		_ = os.Remove(tempName)
		return nil, err
	}
	if err = os.Rename(tempName, result.Path); err != nil {
		_ = os.Remove(tempName)
		_ = os.Remove(result.Path)
		return nil, fmt.Errorf("failed to move download into place: %w", err)
	}
	return result, nil
}

func (f *Fetcher) get(ctx context.Context, url string, byteRange string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if byteRange != "" {
		httpReq.Header.Set("Range", byteRange)
	}
	resp, err := f.config.Transport.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, downloader.ClassifyTransport("download", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &downloader.StatusError{Code: resp.StatusCode, URL: url}
	}
	return resp, nil
}

func (f *Fetcher) useMultiPart(resp *http.Response) bool {
	mp := f.config.MultiPart
	return mp.Enabled && resp.ContentLength > mp.Threshold && resp.Header.Get("Accept-Ranges") == "bytes"
}

// fetchRanges splits size bytes into contiguous ranges fetched concurrently, each written at its own offset.
func (f *Fetcher) fetchRanges(ctx context.Context, url string, size int64, out *os.File) error {
	if err := out.Truncate(size); err != nil {
		return fmt.Errorf("failed to allocate temp file: %w", err)
	}
	parts := int64(f.config.MultiPart.Parts)
	chunk := (size + parts - 1) / parts
	g, ctx := errgroup.WithContext(ctx)
	for start := int64(0); start < size; start += chunk {
		start, end := start, start+chunk-1
		if end >= size {
			end = size - 1
		}
		g.Go(func() error {
			resp, err := f.get(ctx, url, fmt.Sprintf("bytes=%d-%d", start, end))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusPartialContent {
				return fmt.Errorf("server ignored range request: status %d", resp.StatusCode)
			}
			w := io.NewOffsetWriter(out, start)
			n, err := io.Copy(io.MultiWriter(w, countingWriter{f.config.OnBytes}), io.LimitReader(NewContextReader(ctx, resp.Body), end-start+1))
			if err != nil {
				return downloader.ClassifyTransport("download range", url, err)
			}
			if n != end-start+1 {
				return fmt.Errorf("short range %d-%d: got %d bytes", start, end, n)
			}
			return nil
		})
	}
	return g.Wait()
}

func hashFile(file *os.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash download: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReserveName creates an empty file at the first free path of name.ext, name(1).ext, name(2).ext, ... so that
// concurrent downloads of similarly named content never pick the same path.
func ReserveName(dir string, name string, ext string) (string, error) {
	for n := 0; n < maxNameAttempts; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s(%d)", name, n)
		}
		if ext != "" {
			candidate += "." + ext
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		} else if err != nil {
			return "", fmt.Errorf("failed to reserve file name: %w", err)
		}
		_ = f.Close()
		return path, nil
	}
	return "", fmt.Errorf("%w for %v", ErrNoFreeName, filepath.Join(dir, name))
}
