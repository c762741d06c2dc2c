//go:build cgo

package speech

import (
	"fmt"

	vosk "github.com/alphacep/vosk-api/go"
)

// voskRecognizer adapts the Vosk/Kaldi binding to the Recognizer interface.
// The model is loaded per instance; Vosk recognizer state is stateful and
// must not be shared across transcriptions.
type voskRecognizer struct {
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

func NewVoskRecognizer(modelPath string, sampleRate int) (Recognizer, error) {
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	rec.SetWords(1)
	return &voskRecognizer{model: model, rec: rec}, nil
}

func (r *voskRecognizer) Feed(chunk []byte) (string, bool, error) {
	if r.rec.AcceptWaveform(chunk) == 0 {
		return "", false, nil
	}
	text, err := textFromResult(r.rec.Result())
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (r *voskRecognizer) Flush() (string, error) {
	return textFromResult(r.rec.FinalResult())
}

func (r *voskRecognizer) Close() {
	r.rec.Free()
	r.model.Free()
}
