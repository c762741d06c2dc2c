// Package speech turns canonical WAV audio into text through a streaming
// recognizer. The recognizer instance is scoped to a single Transcribe call;
// nothing recognizer-side is shared across requests.
package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrModelNotFound means the acoustic model resource is missing. This is
	// a configuration problem, not a per-request one.
	ErrModelNotFound = errors.New("speech model not found")
	// ErrRecognitionFailed covers decoder-level failures mid-stream.
	ErrRecognitionFailed = errors.New("speech recognition failed")
)

// chunkBytes is the recognizer's preferred feed granularity.
const chunkBytes = 4000

// Recognizer consumes PCM chunks and emits finalized text segments.
type Recognizer interface {
	// Feed consumes one chunk. When the recognizer judges an utterance
	// boundary final it returns the segment text and true.
	Feed(chunk []byte) (string, bool, error)
	// Flush returns the final pending segment after the stream is exhausted.
	Flush() (string, error)
	Close()
}

// NewRecognizerFunc builds a fresh recognizer for one transcription.
type NewRecognizerFunc func(modelPath string, sampleRate int) (Recognizer, error)

type Transcriber struct {
	modelPath     string
	newRecognizer NewRecognizerFunc
	logger        *slog.Logger
}

type Options struct {
	// ModelPath points at the acoustic model directory on disk.
	ModelPath string
	// NewRecognizer defaults to the Vosk binding.
	NewRecognizer NewRecognizerFunc
	Logger        *slog.Logger
}

func NewTranscriber(opts Options) (*Transcriber, error) {
	modelPath := strings.TrimSpace(opts.ModelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("speech model path is required")
	}
	newRecognizer := opts.NewRecognizer
	if newRecognizer == nil {
		newRecognizer = NewVoskRecognizer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		modelPath:     modelPath,
		newRecognizer: newRecognizer,
		logger:        logger,
	}, nil
}

// Transcribe scans audioPath and returns the space-joined transcript in the
// order segments were finalized. An empty transcript with a nil error is a
// valid outcome. audioPath is deleted on every exit path.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	defer func() {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("speech_audio_remove_error", "path", audioPath, "error", err.Error())
		}
	}()

	// Fail fast on a missing model before touching any audio handle.
	if _, err := os.Stat(t.modelPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, t.modelPath)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: open audio: %v", ErrRecognitionFailed, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return "", fmt.Errorf("%w: read wav header: %v", ErrRecognitionFailed, err)
	}
	if dec.SampleRate == 0 {
		return "", fmt.Errorf("%w: wav header missing sample rate", ErrRecognitionFailed)
	}

	rec, err := t.newRecognizer(t.modelPath, int(dec.SampleRate))
	if err != nil {
		return "", fmt.Errorf("%w: init recognizer: %v", ErrRecognitionFailed, err)
	}
	defer rec.Close()

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: int(dec.NumChans),
			SampleRate:  int(dec.SampleRate),
		},
		Data:           make([]int, chunkBytes/2),
		SourceBitDepth: 16,
	}

	var segments []string
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrRecognitionFailed, ctx.Err())
		default:
		}

		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return "", fmt.Errorf("%w: read pcm: %v", ErrRecognitionFailed, err)
		}
		if n == 0 {
			break
		}

		segment, final, err := rec.Feed(pcmBytes(buf.Data[:n]))
		if err != nil {
			return "", fmt.Errorf("%w: feed recognizer: %v", ErrRecognitionFailed, err)
		}
		if final && segment != "" {
			segments = append(segments, segment)
		}
	}

	final, err := rec.Flush()
	if err != nil {
		return "", fmt.Errorf("%w: final segment: %v", ErrRecognitionFailed, err)
	}
	if final != "" {
		segments = append(segments, final)
	}

	transcript := strings.Join(segments, " ")
	t.logger.Debug("speech_transcribed", "segments", len(segments), "chars", len(transcript))
	return transcript, nil
}

// pcmBytes packs decoded samples back into the little-endian signed 16-bit
// stream the recognizer expects.
func pcmBytes(samples []int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
