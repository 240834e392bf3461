// Package tokencount implements the non-reasoning-model token counter
// (spec.md §4.3) and the HPC trailing-usage-frame scan (spec.md §4.6).
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// modelPrefixes maps a model-id fragment to its BPE encoding name; the
// fragment is matched anywhere in the service/model identifier, so a
// vendor-prefixed tag such as "openai-gpt4o-mini" still resolves.
// All current chat-family models share cl100k_base; the table exists so a
// future model family only needs a new entry, not a new code path.
var modelPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-3.5-turbo", "cl100k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt4", "cl100k_base"},
	{"o1", "cl100k_base"},
	{"o3", "cl100k_base"},
	{"o4", "cl100k_base"},
}

var (
	encCacheMu sync.Mutex
	encCache   = map[string]*tiktoken.Tiktoken{}
)

func encodingForModel(model string) string {
	for _, p := range modelPrefixes {
		if strings.Contains(model, p.prefix) {
			return p.encoding
		}
	}
	return fallbackEncoding
}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	name := encodingForModel(model)

	encCacheMu.Lock()
	defer encCacheMu.Unlock()
	if enc, ok := encCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encCache[name] = enc
	return enc, nil
}

// Message is the minimal shape of a chat message needed for counting: role,
// textual content, and an optional name field.
type Message struct {
	Role    string
	Content string
	Name    string
}

const (
	tokensPerMessage = 3
	tokensPerName    = 1
	replyPriming     = 3
)

// CountMessages returns the prompt token count for a list of chat messages
// against the encoding resolved for model. Image-bearing messages are the
// caller's responsibility: ImageTokens short-circuits this path entirely
// per spec.md §4.3, so CountMessages only ever sees text.
//
// replyPriming is added once per message, not once per call: the original
// proxy's extract_tokens adds "every reply is primed with
// <|start|>assistant<|message|>" inside its per-message loop.
func CountMessages(model string, messages []Message) (int, error) {
	enc, err := encoderFor(model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(m.Content, nil, nil))
		total += len(enc.Encode(m.Role, nil, nil))
		if m.Name != "" {
			total += len(enc.Encode(m.Name, nil, nil))
			total += tokensPerName
		}
		total += replyPriming
	}
	return total, nil
}

// CountText returns the token count of a single string of completion text,
// used for the output half of the accounting pair.
func CountText(model, text string) (int, error) {
	enc, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
