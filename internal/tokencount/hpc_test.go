package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanUsageFindsTrailingFrame(t *testing.T) {
	body := []byte(`data: {"choices":[{"delta":{"content":"hi"}}]}

data: {"usage":{"prompt_tokens":7,"completion_tokens":11,"total_tokens":18}}

`)
	in, out := ScanUsage(body)
	assert.Equal(t, 7, in)
	assert.Equal(t, 11, out)
}

func TestScanUsageReturnsZeroWhenAbsent(t *testing.T) {
	body := []byte(`data: {"choices":[{"delta":{"content":"hi"}}]}

`)
	in, out := ScanUsage(body)
	assert.Equal(t, 0, in)
	assert.Equal(t, 0, out)
}

func TestScanUsagePicksLastMatchingFrame(t *testing.T) {
	body := []byte(`data: {"usage":{"prompt_tokens":1,"completion_tokens":1}}

data: {"usage":{"prompt_tokens":7,"completion_tokens":11}}

`)
	in, out := ScanUsage(body)
	assert.Equal(t, 7, in)
	assert.Equal(t, 11, out)
}
