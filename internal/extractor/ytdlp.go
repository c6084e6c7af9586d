package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"
	"github.com/tgfetch/tgfetch/internal/fetch"
	"github.com/tgfetch/tgfetch/internal/logctx"
)

const dirPerm = 0755

// Engine adapts yt-dlp to the fetch.Extractor contract. Audio requests are
// normalized to mp3 regardless of the source codec; video requests yield a
// single muxed mp4. Playlist URLs resolve to their primary item only.
type Engine struct {
	workDir string
}

func New(workDir string) *Engine {
	return &Engine{workDir: workDir}
}

// Extract materializes a file for the URL and kind, renames it to the
// sanitized title and returns its path, title and size. All engine and
// filesystem failures surface as a single *fetch.ExtractionError.
func (e *Engine) Extract(ctx context.Context, url string, kind fetch.Kind) (*fetch.Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("url", url, "kind", kind.String())

	if err := os.MkdirAll(e.workDir, dirPerm); err != nil {
		return nil, &fetch.ExtractionError{URL: url, Err: fmt.Errorf("create working directory: %w", err)}
	}

	dl := ytdlp.New().
		NoPlaylist().
		NoCheckCertificates().
		Output(filepath.Join(e.workDir, "%(title)s.%(ext)s"))

	switch kind {
	case fetch.KindAudio:
		dl = dl.Format("bestaudio/best").
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
	case fetch.KindVideo:
		dl = dl.Format("mp4/best").
			MergeOutputFormat("mp4")
	default:
		return nil, &fetch.ExtractionError{URL: url, Err: fmt.Errorf("kind %q is not extractable", kind)}
	}

	logger.Info("starting extraction")

	res, err := dl.Run(ctx, url)
	if err != nil {
		return nil, &fetch.ExtractionError{URL: url, Err: err}
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return nil, &fetch.ExtractionError{URL: url, Err: fmt.Errorf("read engine output: %w", err)}
	}

	if len(info) == 0 {
		return nil, &fetch.ExtractionError{URL: url, Err: errors.New("engine produced no media info")}
	}

	title := "file"
	if info[0].Title != nil {
		if s := fetch.SanitizeTitle(*info[0].Title); s != "" {
			title = s
		}
	}

	var rawPath string
	if info[0].Filename != nil {
		rawPath = *info[0].Filename
	}

	if rawPath == "" {
		return nil, &fetch.ExtractionError{URL: url, Err: errors.New("engine did not report an output file")}
	}

	if kind == fetch.KindAudio {
		rawPath = audioOutputPath(rawPath)
	}

	finalPath := filepath.Join(e.workDir, title+filepath.Ext(rawPath))
	if rawPath != finalPath {
		// Tolerate a source that is already in place under the final name.
		if err := os.Rename(rawPath, finalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &fetch.ExtractionError{URL: url, Err: fmt.Errorf("rename output file: %w", err)}
		}
	}

	st, err := os.Stat(finalPath)
	if err != nil {
		return nil, &fetch.ExtractionError{URL: url, Err: fmt.Errorf("stat output file: %w", err)}
	}

	logger.Info("extraction finished", "title", title, "path", finalPath,
		"size", humanize.Bytes(uint64(st.Size())))

	return &fetch.Result{FilePath: finalPath, Title: title, SizeBytes: st.Size()}, nil
}

// audioOutputPath points at the mp3 the transcode postprocessor produced when
// the raw retrieval container differed from the target. When the retrieval
// already yielded mp3 there is nothing to swap.
func audioOutputPath(rawPath string) string {
	if strings.EqualFold(filepath.Ext(rawPath), ".mp3") {
		return rawPath
	}

	mp3 := strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + ".mp3"
	if _, err := os.Stat(mp3); err == nil {
		return mp3
	}

	return rawPath
}
