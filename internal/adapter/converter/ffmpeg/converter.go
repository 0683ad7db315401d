package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/port"
)

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains invalid characters")
)

const outputName = "audio.wav"

type Converter struct {
	binary string
	runner command.Runner
}

func NewConverter(binary string, runner command.Runner) *Converter {
	if binary == "" {
		binary = "ffmpeg"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Converter{binary: binary, runner: runner}
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrInvalidPath
	}
	return nil
}

// Transcode extracts the audio track of mediaPath into a mono PCM wav file
// inside dir.
func (c *Converter) Transcode(ctx context.Context, mediaPath string, format domain.AudioFormat, dir string) (string, error) {
	if err := validatePath(mediaPath); err != nil {
		return "", fmt.Errorf("%w: input: %v", domain.ErrTranscode, err)
	}
	if err := validatePath(dir); err != nil {
		return "", fmt.Errorf("%w: output dir: %v", domain.ErrTranscode, err)
	}
	if !domain.SupportedMediaExt(mediaPath) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(mediaPath))
	}

	codec := format.Codec
	if codec == "" {
		codec = domain.DefaultAudioCodec
	}
	outputPath := filepath.Join(dir, outputName)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", mediaPath,
		"-vn",
		"-acodec", codec,
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-y", outputPath,
	}

	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		if isFormatError(res.Stderr) {
			return "", fmt.Errorf("%w: %v", domain.ErrUnsupportedFormat, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTranscode, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("%w: output missing: %v", domain.ErrTranscode, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: output is empty", domain.ErrTranscode)
	}
	return outputPath, nil
}

// isFormatError matches the ffmpeg diagnostics for inputs it cannot demux or
// that carry no audio stream.
func isFormatError(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"invalid data found when processing input",
		"does not contain any stream",
		"output file #0 does not contain any stream",
		"unknown input format",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

var _ port.Transcoder = (*Converter)(nil)
