package speech

import (
	"encoding/json"
	"fmt"
)

// textFromResult extracts the "text" field from a Vosk JSON result.
func textFromResult(raw string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("parse recognizer result: %w", err)
	}
	return out.Text, nil
}
