package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes a mono 16 kHz 16-bit file with the given number of samples.
func writeWAV(t *testing.T, path string, samples int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

// scriptedRecognizer returns one scripted segment per Feed call, then the
// scripted flush text.
type scriptedRecognizer struct {
	segments []string
	flush    string
	feedErr  error
	flushErr error

	feeds     int
	fedBytes  int
	closed    bool
	closedPtr *bool
}

func (r *scriptedRecognizer) Feed(chunk []byte) (string, bool, error) {
	if r.feedErr != nil {
		return "", false, r.feedErr
	}
	r.fedBytes += len(chunk)
	i := r.feeds
	r.feeds++
	if i < len(r.segments) && r.segments[i] != "" {
		return r.segments[i], true, nil
	}
	return "", false, nil
}

func (r *scriptedRecognizer) Flush() (string, error) {
	return r.flush, r.flushErr
}

func (r *scriptedRecognizer) Close() {
	r.closed = true
	if r.closedPtr != nil {
		*r.closedPtr = true
	}
}

func newTestTranscriber(t *testing.T, rec *scriptedRecognizer) (*Transcriber, *int) {
	t.Helper()
	created := 0
	tr, err := NewTranscriber(Options{
		ModelPath: t.TempDir(),
		NewRecognizer: func(modelPath string, sampleRate int) (Recognizer, error) {
			created++
			if sampleRate != 16000 {
				t.Fatalf("sample rate = %d, want 16000", sampleRate)
			}
			return rec, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tr, &created
}

func TestTranscribePreservesSegmentOrder(t *testing.T) {
	t.Parallel()

	// Two full 2000-sample chunks, each finalizing a segment, plus a flush.
	audioPath := filepath.Join(t.TempDir(), "voice.wav")
	writeWAV(t, audioPath, 4000)

	rec := &scriptedRecognizer{segments: []string{"hello", "world"}, flush: "!"}
	tr, _ := newTestTranscriber(t, rec)

	got, err := tr.Transcribe(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hello world !" {
		t.Fatalf("transcript = %q, want %q", got, "hello world !")
	}
	if rec.feeds != 2 {
		t.Fatalf("feeds = %d, want 2", rec.feeds)
	}
	if rec.fedBytes != 8000 {
		t.Fatalf("fed bytes = %d, want 8000", rec.fedBytes)
	}
	if !rec.closed {
		t.Fatal("recognizer not closed")
	}
	if _, statErr := os.Stat(audioPath); !os.IsNotExist(statErr) {
		t.Fatal("canonical audio file not deleted after success")
	}
}

func TestTranscribeEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "voice.wav")
	writeWAV(t, audioPath, 2000)

	tr, _ := newTestTranscriber(t, &scriptedRecognizer{})
	got, err := tr.Transcribe(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "" {
		t.Fatalf("transcript = %q, want empty", got)
	}
	if _, statErr := os.Stat(audioPath); !os.IsNotExist(statErr) {
		t.Fatal("canonical audio file not deleted")
	}
}

func TestTranscribeMissingModelFailsFast(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "voice.wav")
	writeWAV(t, audioPath, 2000)

	tr, err := NewTranscriber(Options{
		ModelPath: filepath.Join(t.TempDir(), "nope"),
		NewRecognizer: func(string, int) (Recognizer, error) {
			t.Fatal("recognizer must not be created when the model is missing")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("error = %v, want ErrModelNotFound", err)
	}
	if _, statErr := os.Stat(audioPath); !os.IsNotExist(statErr) {
		t.Fatal("audio file not deleted on model-not-found exit")
	}
}

func TestTranscribeFeedErrorMapsToRecognitionFailed(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "voice.wav")
	writeWAV(t, audioPath, 2000)

	rec := &scriptedRecognizer{feedErr: errors.New("decoder exploded")}
	tr, _ := newTestTranscriber(t, rec)

	_, err := tr.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, ErrRecognitionFailed) {
		t.Fatalf("error = %v, want ErrRecognitionFailed", err)
	}
	if !rec.closed {
		t.Fatal("recognizer not closed on failure")
	}
	if _, statErr := os.Stat(audioPath); !os.IsNotExist(statErr) {
		t.Fatal("audio file not deleted on failure")
	}
}

func TestTranscribeCorruptAudioMapsToRecognitionFailed(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "voice.wav")
	if err := os.WriteFile(audioPath, []byte("RIFFgarbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	tr, created := newTestTranscriber(t, &scriptedRecognizer{})
	_, err := tr.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, ErrRecognitionFailed) {
		t.Fatalf("error = %v, want ErrRecognitionFailed", err)
	}
	if *created != 0 {
		t.Fatal("recognizer created for unreadable audio")
	}
	if _, statErr := os.Stat(audioPath); !os.IsNotExist(statErr) {
		t.Fatal("audio file not deleted")
	}
}

func TestFreshRecognizerPerCall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := &scriptedRecognizer{}
	tr, created := newTestTranscriber(t, rec)

	for i := 0; i < 3; i++ {
		audioPath := filepath.Join(dir, "voice.wav")
		writeWAV(t, audioPath, 2000)
		if _, err := tr.Transcribe(context.Background(), audioPath); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if *created != 3 {
		t.Fatalf("recognizers created = %d, want 3", *created)
	}
}

func TestTextFromResult(t *testing.T) {
	t.Parallel()

	got, err := textFromResult(`{"text": "hello there", "result": []}`)
	if err != nil {
		t.Fatalf("textFromResult() error = %v", err)
	}
	if got != "hello there" {
		t.Fatalf("text = %q", got)
	}
	if _, err := textFromResult("not json"); err == nil {
		t.Fatal("expected parse error")
	}
}
