// Package respframe parses the HTTP-shaped status line and headers that
// the HPC head node's remote curl invocation writes to its stdout
// (spec.md §4.6), handling 1xx continuation, malformed lines, and the
// absence of a terminator.
package respframe

import (
	"fmt"
	"net/http/textproto"
	"strconv"
	"strings"
)

// Frame is a parsed status line plus headers, with the body bytes that
// followed the header terminator in the buffer consumed so far.
type Frame struct {
	StatusCode int
	Reason     string
	Header     map[string]string
	Body       []byte
}

const headerTerminator = "\r\n\r\n"

// ErrIncomplete indicates the buffer does not yet contain a full header
// terminator. Callers should keep reading and retry.
type ErrIncomplete struct{}

func (ErrIncomplete) Error() string { return "respframe: header terminator not yet seen" }

// ErrMalformedStatusLine indicates the status line could not be split
// into version, code, and reason.
type ErrMalformedStatusLine struct {
	Line string
}

func (e ErrMalformedStatusLine) Error() string {
	return fmt.Sprintf("respframe: malformed status line %q", e.Line)
}

// Parse locates the first header terminator in buf and returns the parsed
// Frame. A 100 Continue status line causes headers to be discarded and
// parsing to recurse on the remaining bytes, per spec.md §4.6 rule 2. If
// no terminator is present yet, Parse returns ErrIncomplete so the caller
// can read more bytes and retry.
func Parse(buf []byte) (Frame, error) {
	idx := strings.Index(string(buf), headerTerminator)
	if idx < 0 {
		return Frame{}, ErrIncomplete{}
	}

	head := string(buf[:idx])
	body := buf[idx+len(headerTerminator):]

	lines := strings.Split(head, "\r\n")
	statusLine := lines[0]
	headerLines := lines[1:]

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return Frame{}, ErrMalformedStatusLine{Line: statusLine}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Frame{}, ErrMalformedStatusLine{Line: statusLine}
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	if code == 100 {
		return Parse(body)
	}

	headers := parseHeaderLines(headerLines)

	return Frame{
		StatusCode: code,
		Reason:     reason,
		Header:     headers,
		Body:       body,
	}, nil
}

// parseHeaderLines splits "Name: Value" lines on the first ": ", skipping
// any line that doesn't match, and drops Content-Length since responses
// are always streamed rather than length-delimited.
func parseHeaderLines(lines []string) map[string]string {
	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if textproto.CanonicalMIMEHeaderKey(name) == "Content-Length" {
			continue
		}
		headers[name] = value
	}
	return headers
}
