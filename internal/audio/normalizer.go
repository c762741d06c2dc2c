// Package audio converts arbitrary voice-note audio into the canonical format
// the recognizer requires: mono, 16 kHz, signed 16-bit PCM WAV.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ErrConversionFailed wraps every decode/encode/subprocess failure in this
// package; callers must not feed an audio path to the recognizer after it.
var ErrConversionFailed = errors.New("audio conversion failed")

const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalBitDepth   = 16

	// Fixed boost for typically quiet voice-message input. Deterministic
	// gain, not dynamic range compression.
	gainDB = "10dB"
)

type Normalizer struct {
	ffmpeg string
	logger *slog.Logger
}

type Options struct {
	// FFmpegPath is the resampling/remixing subprocess binary, "ffmpeg" by
	// default.
	FFmpegPath string
	Logger     *slog.Logger
}

func NewNormalizer(opts Options) *Normalizer {
	ffmpeg := strings.TrimSpace(opts.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{ffmpeg: ffmpeg, logger: logger}
}

// Normalize produces a canonical WAV for inputPath and returns its path. The
// returned file is owned by the caller; intermediates the normalizer discards
// along the way are removed here. inputPath itself is never deleted, though
// it may be rewritten in place when it is already a WAV (the gain pass).
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	cur := inputPath

	// Non-WAV containers are decoded to a sibling WAV first.
	if strings.ToLower(filepath.Ext(cur)) != ".wav" {
		wavPath := replaceExt(cur, ".wav")
		if err := n.runFFmpeg(ctx, "-y", "-i", cur, wavPath); err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", ErrConversionFailed, filepath.Base(cur), err)
		}
		n.logger.Debug("audio_decoded_to_wav", "input", inputPath, "wav", wavPath)
		cur = wavPath
	}

	if err := n.applyGain(ctx, cur); err != nil {
		n.discardIntermediate(cur, inputPath)
		return "", fmt.Errorf("%w: gain: %v", ErrConversionFailed, err)
	}

	spec, err := probeWAV(cur)
	if err != nil {
		n.discardIntermediate(cur, inputPath)
		return "", fmt.Errorf("%w: probe: %v", ErrConversionFailed, err)
	}

	if spec.canonical() {
		return cur, nil
	}

	out := replaceExt(cur, ".norm.wav")
	err = n.runFFmpeg(ctx, "-y", "-i", cur,
		"-ac", fmt.Sprintf("%d", CanonicalChannels),
		"-ar", fmt.Sprintf("%d", CanonicalSampleRate),
		"-sample_fmt", "s16",
		out)
	if err != nil {
		n.discardIntermediate(cur, inputPath)
		return "", fmt.Errorf("%w: resample: %v", ErrConversionFailed, err)
	}
	n.logger.Debug("audio_resampled",
		"input", cur,
		"output", out,
		"channels", spec.channels,
		"sample_rate", spec.sampleRate,
		"bit_depth", spec.bitDepth,
	)
	n.discardIntermediate(cur, inputPath)
	return out, nil
}

// applyGain boosts the file by gainDB, rewriting it in place.
func (n *Normalizer) applyGain(ctx context.Context, path string) error {
	boosted := replaceExt(path, ".boost.wav")
	if err := n.runFFmpeg(ctx, "-y", "-i", path, "-af", "volume="+gainDB, boosted); err != nil {
		_ = os.Remove(boosted)
		return err
	}
	if err := os.Rename(boosted, path); err != nil {
		_ = os.Remove(boosted)
		return err
	}
	return nil
}

// discardIntermediate removes a working file unless it is the caller-owned
// input.
func (n *Normalizer) discardIntermediate(path, inputPath string) {
	if path == inputPath {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		n.logger.Warn("audio_intermediate_remove_error", "path", path, "error", err.Error())
	}
}

func (n *Normalizer) runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, n.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		if detail != "" {
			return fmt.Errorf("%s: %v: %s", n.ffmpeg, err, detail)
		}
		return fmt.Errorf("%s: %v", n.ffmpeg, err)
	}
	return nil
}

type wavSpec struct {
	channels   int
	sampleRate int
	bitDepth   int
}

func (s wavSpec) canonical() bool {
	return s.channels == CanonicalChannels &&
		s.sampleRate == CanonicalSampleRate &&
		s.bitDepth == CanonicalBitDepth
}

func probeWAV(path string) (wavSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return wavSpec{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return wavSpec{}, err
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return wavSpec{}, fmt.Errorf("not a usable wav file: %s", filepath.Base(path))
	}
	return wavSpec{
		channels:   int(d.NumChans),
		sampleRate: int(d.SampleRate),
		bitDepth:   int(d.BitDepth),
	}, nil
}

func replaceExt(path, newExt string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + newExt
}
