package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dotcommander/vbook/internal/core"
)

// ErrMalformedResponse is returned by GenerateStructured when the model's
// answer cannot be decoded into the target value.
var ErrMalformedResponse = fmt.Errorf("%w: response", core.ErrMalformed)

// GenerateStructured requests JSON and decodes it into v. A response that
// does not decode is reported as ErrMalformedResponse so callers can re-ask
// without treating it as a service failure.
func GenerateStructured(ctx context.Context, client AIClient, req Request, v any) error {
	req.JSON = true
	raw, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}

	cleaned := CleanJSONResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		core.RecordLLMCall(req.Operation, "malformed", 0)
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// CleanJSONResponse removes markdown code fences and surrounding prose from
// a model response and repairs the most common JSON slips.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	return extractJSON(response)
}

// extractJSON finds the first balanced object in response. String literals
// are skipped so braces inside prose values do not confuse the scan.
func extractJSON(response string) string {
	if isValidJSON(response) {
		return response
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}

	depth := 0
	inString := false
	escaped := false
	end := 0
	for i := start; i < len(response) && end == 0; i++ {
		ch := response[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == 0 {
		return response
	}

	candidate := response[start:end]
	if isValidJSON(candidate) {
		return candidate
	}

	candidate = fixJSONString(candidate)
	if isValidJSON(candidate) {
		return candidate
	}

	return response
}

// fixJSONString attempts to fix trailing commas and unquoted keys.
func fixJSONString(jsonStr string) string {
	jsonStr = trailingCommaRe.ReplaceAllString(jsonStr, "$1")
	jsonStr = bareKeyRe.ReplaceAllString(jsonStr, `$1"$2":`)
	return jsonStr
}

func isValidJSON(str string) bool {
	var js interface{}
	return json.Unmarshal([]byte(str), &js) == nil
}
