package tokencount

import (
	"encoding/json"
	"strings"
)

// usageFrame matches the shape of an SSE frame that carries a trailing
// token-usage object (spec.md §4.6, scenario S2).
type usageFrame struct {
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ScanUsage splits the accumulated HPC response body on the SSE frame
// separator and scans frames in reverse order, returning the first
// top-level "usage" object it finds. If no frame carries usage, both
// counts are zero.
func ScanUsage(body []byte) (inputTokens, outputTokens int) {
	frames := strings.Split(string(body), "\n\n")

	for i := len(frames) - 1; i >= 0; i-- {
		frame := strings.TrimSpace(frames[i])
		if frame == "" {
			continue
		}
		frame = strings.TrimPrefix(frame, "data: ")
		frame = strings.TrimPrefix(frame, "data:")

		var parsed usageFrame
		if err := json.Unmarshal([]byte(frame), &parsed); err != nil {
			continue
		}
		if parsed.Usage != nil {
			return parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
		}
	}
	return 0, 0
}
