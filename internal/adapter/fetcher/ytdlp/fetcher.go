// Package ytdlp downloads remote videos with the yt-dlp CLI.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/port"
)

const outputStem = "media"

type Options struct {
	Binary      string
	CookiesFile string
	Retries     int
}

type Fetcher struct {
	opts   Options
	runner command.Runner
}

func NewFetcher(opts Options, runner command.Runner) *Fetcher {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Fetcher{opts: opts, runner: runner}
}

// FormatSelector picks the best video up to quality pixels high, falling back
// to the best pre-muxed stream under the same ceiling.
func FormatSelector(quality int) string {
	q := strconv.Itoa(quality)
	return "bestvideo[height<=" + q + "]+bestaudio/best[height<=" + q + "]"
}

func (f *Fetcher) baseArgs() []string {
	args := []string{"--no-playlist", "--no-progress", "--retries", strconv.Itoa(f.opts.Retries)}
	if f.opts.CookiesFile != "" {
		args = append(args, "--cookies", f.opts.CookiesFile)
	}
	return args
}

// Probe reads the source metadata without downloading and returns its
// duration. A zero duration means the source did not report one.
func (f *Fetcher) Probe(ctx context.Context, url string) (time.Duration, error) {
	args := append(f.baseArgs(), "--dump-json", "--skip-download", url)
	res, err := f.runner.Run(ctx, f.opts.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: probe: %v", domain.ErrFetch, err)
	}

	var meta struct {
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal([]byte(firstJSONLine(res.Stdout)), &meta); err != nil {
		return 0, fmt.Errorf("%w: probe: decode metadata: %v", domain.ErrFetch, err)
	}
	if meta.Duration <= 0 || math.IsNaN(meta.Duration) {
		return 0, nil
	}
	return time.Duration(meta.Duration * float64(time.Second)), nil
}

// Fetch downloads url into dir and returns the path of the resulting file.
func (f *Fetcher) Fetch(ctx context.Context, url string, quality int, dir string) (string, error) {
	template := filepath.Join(dir, outputStem+".%(ext)s")
	args := append(f.baseArgs(),
		"-f", FormatSelector(quality),
		"-o", template,
		"--print", "after_move:filepath",
		url,
	)

	res, err := f.runner.Run(ctx, f.opts.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	path := command.LastLine(res.Stdout)
	if path == "" {
		path, err = findOutput(dir)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrFetch, err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: downloaded file missing: %v", domain.ErrFetch, err)
	}
	return path, nil
}

// findOutput locates the downloaded file when yt-dlp did not print its path.
func findOutput(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, outputStem+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no output in %s", dir)
}

func firstJSONLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			return line
		}
	}
	return strings.TrimSpace(s)
}

var _ port.Fetcher = (*Fetcher)(nil)
