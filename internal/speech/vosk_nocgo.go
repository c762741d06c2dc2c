//go:build !cgo

package speech

import "fmt"

// NewVoskRecognizer requires the cgo-based Vosk binding; without cgo the
// recognizer cannot be constructed.
func NewVoskRecognizer(modelPath string, sampleRate int) (Recognizer, error) {
	return nil, fmt.Errorf("vosk recognizer unavailable: built without cgo")
}
