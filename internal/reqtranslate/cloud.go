package reqtranslate

import (
	"fmt"
	"regexp"
)

// Message mirrors the subset of an OpenAI-style chat message this
// translator cares about.
type Message struct {
	Role    string
	Content string
	Name    string
}

// reasoningFamily matches service/model identifiers known not to accept a
// system role (spec.md §4.2 step 4): the o1/o3/o4 reasoning model family.
var reasoningFamily = regexp.MustCompile(`(^|[-_])o[1-9](-|_|$)`)

// IsReasoningModel reports whether service belongs to the reasoning
// family that requires folding the system prompt into the first user
// message instead of sending a system-role message.
func IsReasoningModel(service string) bool {
	return reasoningFamily.MatchString(service)
}

// CloudRegistry resolves a service tag to a backend deployment id.
type CloudRegistry interface {
	Deployment(service string) (id string, ok bool)
}

// ErrUnknownService is returned when service isn't present in the
// registry; callers map it to a 404 per spec.md §7.
type ErrUnknownService struct{ Service string }

func (e ErrUnknownService) Error() string {
	return fmt.Sprintf("reqtranslate: unknown service %q", e.Service)
}

// CloudCall is the fully prepared chat-completion request: the
// deployment id to target, whether to issue it as a streaming call, and
// the final message list (system message dropped or folded per model
// family, per spec.md §4.2 steps 2-4).
type CloudCall struct {
	DeploymentID string
	Stream       bool
	Messages     []Message
}

// BuildCloudCall resolves service against registry and assembles the
// message list to send upstream.
func BuildCloudCall(registry CloudRegistry, service, systemPrompt string, messages []Message) (CloudCall, error) {
	deploymentID, ok := registry.Deployment(service)
	if !ok {
		return CloudCall{}, ErrUnknownService{Service: service}
	}

	history := dropFirstSystemMessage(messages)

	if IsReasoningModel(service) {
		folded := foldSystemPromptIntoFirstUser(systemPrompt, history)
		return CloudCall{DeploymentID: deploymentID, Stream: false, Messages: folded}, nil
	}

	withPrompt := append([]Message{{Role: "system", Content: systemPrompt}}, history...)
	return CloudCall{DeploymentID: deploymentID, Stream: true, Messages: withPrompt}, nil
}

// dropFirstSystemMessage removes the first system-role message from the
// list, leaving the rest untouched (spec.md §4.2 step 2).
func dropFirstSystemMessage(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	dropped := false
	for _, m := range messages {
		if !dropped && m.Role == "system" {
			dropped = true
			continue
		}
		out = append(out, m)
	}
	return out
}

// foldSystemPromptIntoFirstUser concatenates the gateway system prompt
// onto the first user message's content with a newline separator, since
// reasoning models reject a system-role message entirely. When no user
// message remains, the prompt is prepended as a user message of its own.
func foldSystemPromptIntoFirstUser(systemPrompt string, history []Message) []Message {
	folded := make([]Message, len(history))
	copy(folded, history)
	for i := range folded {
		if folded[i].Role == "user" {
			folded[i].Content = systemPrompt + "\n" + folded[i].Content
			return folded
		}
	}
	return append([]Message{{Role: "user", Content: systemPrompt}}, folded...)
}
