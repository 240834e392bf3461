// Package reqtranslate builds the outbound request for each backend from
// an inbound HTTP request: the HPC remote-shell command line (spec.md
// §4.5) and the cloud chat-completion call shape (spec.md §4.2).
package reqtranslate

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// InlineDataLimit is the default body size, in bytes, at or below which a
// UTF-8 body may be inlined on the command line instead of written to
// the remote process's stdin (spec.md §4.5).
const InlineDataLimit = 1024

// HPCRequest is the translated form of an inbound request ready to hand
// to the transport layer: the four-line header, the shell-assembled
// argument vector, and (when the body didn't fit inline) the bytes to
// write to the remote process's stdin.
type HPCRequest struct {
	Command string // four-line header + " -X ... -H ... [-d ...]"
	Stdin   []byte // non-nil when the body must be written to stdin
	CloseIn bool   // true when Stdin should be closed after writing
	Service string
}

// HPCInput carries everything the HPC translator needs from the inbound
// request plus request-scoped policy flags.
type HPCInput struct {
	InferenceID string
	UID         string
	Service     string
	Method      string
	Path        string
	RawQuery    string
	Header      map[string][]string
	Body        []byte

	AccountingEnabled      bool
	InlineBodyEnabled      bool
	ServiceFromBodyEnabled bool
	InlineDataLimit        int
}

// BuildHPCRequest implements spec.md §4.5 end to end: service resolution,
// accounting body rewrite, header filtering, and body placement policy.
func BuildHPCRequest(in HPCInput) (HPCRequest, error) {
	body := in.Body
	service := in.Service

	if rewritten, bodyService, ok := rewriteBodyForAccounting(body, in.AccountingEnabled, in.ServiceFromBodyEnabled); ok {
		body = rewritten
		if service == "" {
			service = bodyService
		}
	}

	if service == "" {
		return HPCRequest{}, fmt.Errorf("reqtranslate: no service tag in header or body")
	}

	path := "/" + strings.TrimPrefix(in.Path, "/")
	if in.RawQuery != "" {
		path += "?" + in.RawQuery
	}

	header := fmt.Sprintf("%s\n%s\n%s\n%s", in.InferenceID, in.UID, service, path)

	limit := in.InlineDataLimit
	if limit == 0 {
		limit = InlineDataLimit
	}
	inline := len(body) == 0 ||
		(in.InlineBodyEnabled && utf8.Valid(body) && len(body) <= limit)

	argv := buildArgv(in.Method, in.Header, body, inline)

	req := HPCRequest{
		Command: header + " " + argv,
		Service: service,
	}
	if !inline && len(body) > 0 {
		req.Stdin = body
		req.CloseIn = true
	}
	return req, nil
}

func buildArgv(method string, header map[string][]string, body []byte, inline bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-X %s", method)

	for name, values := range header {
		if dropHeader(name) {
			continue
		}
		for _, v := range values {
			fmt.Fprintf(&b, ` -H "%s"`, shellEscapeHeader(name, v))
		}
	}

	if inline && len(body) > 0 {
		fmt.Fprintf(&b, " -d %s", shellQuote(string(body)))
	}

	return b.String()
}

// hopByHopHeaders lists the standard HTTP hop-by-hop headers, which must
// never be forwarded onto a second connection (here, re-expressed as
// remote-shell command-line flags) per spec.md §4.1/§4.5.
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// dropHeader implements the header filtering rule: drop hop-by-hop
// headers, content-length, all x-* headers, and all inference-* headers
// except inference-service.
func dropHeader(name string) bool {
	lower := strings.ToLower(name)
	if _, hop := hopByHopHeaders[lower]; hop {
		return true
	}
	if lower == "content-length" {
		return true
	}
	if strings.HasPrefix(lower, "x-") {
		return true
	}
	if strings.HasPrefix(lower, "inference-") && lower != "inference-service" {
		return true
	}
	return false
}

func shellEscapeHeader(name, value string) string {
	return fmt.Sprintf("%s: %s", name, strings.ReplaceAll(value, `"`, `\"`))
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// using the standard shell idiom 'it'\''s' -> 'it' \' 's'.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// rewriteBodyForAccounting adds stream_options.include_usage when
// accounting is enabled and the body requests streaming, and extracts the
// service tag from the JSON "model" field when enabled. A JSON parse
// failure disables accounting for this request and leaves the body
// untouched, per spec.md §4.5.
func rewriteBodyForAccounting(body []byte, accountingEnabled, serviceFromBody bool) (rewritten []byte, service string, ok bool) {
	if len(body) == 0 || (!accountingEnabled && !serviceFromBody) {
		return body, "", false
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return body, "", false
	}

	if serviceFromBody {
		if model, isStr := parsed["model"].(string); isStr {
			service = model
		}
	}

	if accountingEnabled {
		if streaming, isBool := parsed["stream"].(bool); isBool && streaming {
			parsed["stream_options"] = map[string]any{"include_usage": true}
			out, err := json.Marshal(parsed)
			if err == nil {
				return out, service, true
			}
		}
	}

	if service != "" {
		return body, service, true
	}
	return body, "", false
}
