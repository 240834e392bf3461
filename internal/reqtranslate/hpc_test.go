package reqtranslate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() HPCInput {
	return HPCInput{
		InferenceID: "req-1",
		UID:         "alice",
		Service:     "openai-gpt4o-mini",
		Method:      "POST",
		Path:        "/v1/chat/completions",
		Header: map[string][]string{
			"Content-Type":     {"application/json"},
			"Content-Length":   {"42"},
			"X-Forwarded-For":  {"1.2.3.4"},
			"inference-id":     {"req-1"},
			"inference-service": {"openai-gpt4o-mini"},
		},
		Body: []byte(`{"messages":[]}`),
	}
}

func TestBuildHPCRequestHeaderLine(t *testing.T) {
	req, err := BuildHPCRequest(baseInput())
	require.NoError(t, err)

	lines := strings.SplitN(req.Command, "\n", 4)
	assert.Equal(t, "req-1", lines[0])
	assert.Equal(t, "alice", lines[1])
	assert.Equal(t, "openai-gpt4o-mini", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "/v1/chat/completions"))
}

func TestBuildHPCRequestFiltersHeaders(t *testing.T) {
	req, err := BuildHPCRequest(baseInput())
	require.NoError(t, err)

	assert.NotContains(t, req.Command, "Content-Length")
	assert.NotContains(t, req.Command, "X-Forwarded-For")
	assert.NotContains(t, strings.ToLower(req.Command), "inference-id:")
	assert.Contains(t, req.Command, "inference-service: openai-gpt4o-mini")
}

func TestBuildHPCRequestAppendsQuery(t *testing.T) {
	in := baseInput()
	in.RawQuery = "a=1&b=2"

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)

	assert.Contains(t, req.Command, "/v1/chat/completions?a=1&b=2")
}

func TestBuildHPCRequestInlinesSmallUTF8Body(t *testing.T) {
	in := baseInput()
	in.InlineBodyEnabled = true

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)

	assert.Contains(t, req.Command, "-d")
	assert.Nil(t, req.Stdin)
}

func TestBuildHPCRequestWritesOversizedBodyToStdin(t *testing.T) {
	in := baseInput()
	in.InlineBodyEnabled = true
	in.Body = []byte(`{"messages":[{"role":"user","content":"` + strings.Repeat("x", InlineDataLimit) + `"}]}`)

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)

	assert.NotContains(t, req.Command, " -d ")
	assert.Equal(t, in.Body, req.Stdin)
	assert.True(t, req.CloseIn)
}

func TestBuildHPCRequestRejectsMissingService(t *testing.T) {
	in := baseInput()
	in.Service = ""
	in.Header["inference-service"] = nil
	delete(in.Header, "inference-service")
	in.Body = []byte(`{"not":"json"`)

	_, err := BuildHPCRequest(in)
	assert.Error(t, err)
}

func TestBuildHPCRequestExtractsServiceFromBody(t *testing.T) {
	in := baseInput()
	in.Service = ""
	in.ServiceFromBodyEnabled = true
	in.Body = []byte(`{"model":"openai-gpt4o","messages":[]}`)

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)
	assert.Equal(t, "openai-gpt4o", req.Service)
}

func TestBuildHPCRequestAddsIncludeUsageWhenStreaming(t *testing.T) {
	in := baseInput()
	in.AccountingEnabled = true
	in.InlineBodyEnabled = true
	in.Body = []byte(`{"stream":true,"messages":[]}`)

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)

	assert.Contains(t, req.Command, "include_usage")
}

func TestBuildHPCRequestMalformedJSONDisablesAccounting(t *testing.T) {
	in := baseInput()
	in.AccountingEnabled = true
	in.InlineBodyEnabled = true
	in.Body = []byte(`not json`)

	req, err := BuildHPCRequest(in)
	require.NoError(t, err)
	assert.NotContains(t, req.Command, "include_usage")
}
