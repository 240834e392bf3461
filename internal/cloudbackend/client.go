// Package cloudbackend wraps the OpenAI Go SDK for the cloud gateway's
// backend calls, addressing deployments the way Azure OpenAI's REST
// surface expects: /openai/deployments/{id}/... with an api-version query
// parameter and a static api-key header (spec.md §4.2, grounded in the
// Azure translator's deployment-ID path template).
package cloudbackend

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/inference-gateway/gateway/internal/reqtranslate"
)

// Client issues chat-completion calls against a single Azure-style cloud
// endpoint, keyed by deployment id per call.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string

	// extraOpts lets tests inject option.WithHTTPClient to point the SDK
	// at a local httptest.Server instead of the real cloud endpoint.
	extraOpts []option.RequestOption
}

// New builds a Client against endpoint using apiKey and apiVersion for
// every call; these are read once from the secrets store at startup.
func New(endpoint, apiKey, apiVersion string) *Client {
	return &Client{endpoint: endpoint, apiKey: apiKey, apiVersion: apiVersion}
}

// NewWithOptions is New plus extra SDK request options, letting callers
// (notably tests in other packages) point the client at a local
// httptest.Server via option.WithHTTPClient instead of the real endpoint.
func NewWithOptions(endpoint, apiKey, apiVersion string, opts ...option.RequestOption) *Client {
	return &Client{endpoint: endpoint, apiKey: apiKey, apiVersion: apiVersion, extraOpts: opts}
}

func (c *Client) sdkClient(deploymentID string) openai.Client {
	base := fmt.Sprintf("%s/openai/deployments/%s", c.endpoint, deploymentID)
	opts := append([]option.RequestOption{
		option.WithBaseURL(base),
		option.WithHeader("api-key", c.apiKey),
		option.WithQuery("api-version", c.apiVersion),
	}, c.extraOpts...)
	return openai.NewClient(opts...)
}

func toParams(call reqtranslate.CloudCall) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(call.Messages))
	for _, m := range call.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    call.DeploymentID,
		Messages: messages,
	}
}

// Complete issues a non-streaming chat-completion call, used for the
// reasoning-model synthesis path (spec.md §4.2 step 4).
func (c *Client) Complete(ctx context.Context, call reqtranslate.CloudCall) (*openai.ChatCompletion, error) {
	client := c.sdkClient(call.DeploymentID)
	return client.Chat.Completions.New(ctx, toParams(call))
}

// Stream issues a streaming chat-completion call and returns the SDK's
// stream handle; callers drive it with Next()/Current()/Err()/Close().
func (c *Client) Stream(ctx context.Context, call reqtranslate.CloudCall) *ssestream.Stream[openai.ChatCompletionChunk] {
	client := c.sdkClient(call.DeploymentID)
	params := toParams(call)
	return client.Chat.Completions.NewStreaming(ctx, params)
}
