package merge

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/MalloyDelacroix/DownloaderForReddit-sub000/download"
)

// OutputName splits the merged file's location from the video part's path, without its marker, keeping the video's
// extension.
func OutputName(videoPath string, marker string) (dir string, name string, ext string) {
	dir, base := filepath.Split(videoPath)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	if i := strings.LastIndex(name, marker); marker != "" && i >= 0 {
		name = name[:i] + name[i+len(marker):]
	}
	return filepath.Clean(dir), strings.TrimSpace(name), strings.TrimPrefix(ext, ".")
}

type Failure struct {
	Set Set
	Err error
}

type Report struct {
	Merged     []string
	Failed     []Failure
	Incomplete []Set
	// Skipped is true if reassembly was disabled because no muxer is available.
	Skipped bool
}

type Reassembler struct {
	Muxer        Muxer
	VideoMarker  string
	SetFileTimes bool
	log          *zap.SugaredLogger
}

func NewReassembler(muxer Muxer, videoMarker string, setFileTimes bool) *Reassembler {
	return &Reassembler{
		Muxer:        muxer,
		VideoMarker:  videoMarker,
		SetFileTimes: setFileTimes,
		log:          zap.S().Named("merge"),
	}
}

// Run muxes every complete set in the registry, removing each from the registry once handled. Parts of sets that
// fail to mux are left on disk. Incomplete sets are kept in the registry and reported.
func (r *Reassembler) Run(ctx context.Context, registry *Registry) *Report {
	report := &Report{Incomplete: registry.Incomplete()}
	for _, s := range report.Incomplete {
		r.log.With("merge_id", s.ID, "video", s.VideoPath, "audio", s.AudioPath).Warn("merge set incomplete, leaving parts unmerged")
	}
	complete := registry.Complete()
	if len(complete) == 0 {
		return report
	}
	if r.Muxer == nil || !r.Muxer.Available() {
		r.log.Warnf("no muxing tool available, leaving %d video(s) unmerged", len(complete))
		report.Skipped = true
		for _, s := range complete {
			report.Failed = append(report.Failed, Failure{Set: s, Err: ErrMuxerUnavailable})
		}
		return report
	}
	for _, s := range complete {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, Failure{Set: s, Err: err})
			continue
		}
		log := r.log.With("merge_id", s.ID, "video", s.VideoPath, "audio", s.AudioPath)
		output, err := r.merge(ctx, s)
		registry.Remove(s.ID)
		if err != nil {
			log.Warnf("failed to merge video: %v", err)
			report.Failed = append(report.Failed, Failure{Set: s, Err: err})
			continue
		}
		log.With("output", output).Info("merged video")
		report.Merged = append(report.Merged, output)
	}
	return report
}

func (r *Reassembler) merge(ctx context.Context, s Set) (string, error) {
	dir, name, ext := OutputName(s.VideoPath, r.VideoMarker)
	output, err := download.ReserveName(dir, name, ext)
	if err != nil {
		return "", err
	}
	if err := r.Muxer.Mux(ctx, s.VideoPath, s.AudioPath, output); err != nil {
		_ = os.Remove(output)
		return "", err
	}
	if r.SetFileTimes && !s.PostDate.IsZero() {
		if err := os.Chtimes(output, s.PostDate, s.PostDate); err != nil {
			r.log.With("output", output).Warnf("failed to set file time: %v", err)
		}
	}
	for _, part := range []string{s.VideoPath, s.AudioPath} {
		if err := os.Remove(part); err != nil {
			r.log.With("part", part).Warnf("merged but failed to remove part: %v", err)
		}
	}
	return output, nil
}
