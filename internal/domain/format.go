package domain

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AudioFormat is the normalized audio requested from the transcoder.
type AudioFormat struct {
	SampleRate int
	Channels   int
	Codec      string
}

const DefaultAudioCodec = "pcm_s16le"

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{SampleRate: 16000, Channels: 1, Codec: DefaultAudioCodec}
}

var supportedMediaExts = map[string]bool{
	".webm": true, ".mp4": true, ".m4a": true, ".mkv": true,
	".mov": true, ".mp3": true, ".ogg": true, ".opus": true,
	".wav": true, ".flac": true, ".aac": true,
}

// SupportedMediaExt reports whether the container extension of path can be
// handed to the transcoder.
func SupportedMediaExt(path string) bool {
	return supportedMediaExts[strings.ToLower(filepath.Ext(path))]
}

// NormalizeTranscript collapses whitespace and upper-cases the first letter.
func NormalizeTranscript(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(text)
	return string(unicode.ToUpper(r)) + text[size:]
}
