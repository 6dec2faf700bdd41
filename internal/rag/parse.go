package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"textbook-rag/internal/models"
)

// ErrAmbiguousVerdict is returned by ParseVerdict for anything other than the two verdict tokens.
var ErrAmbiguousVerdict = errors.New("ambiguous evaluation verdict")

// SelectionParseError reports a chapter-selection response that holds no JSON array of strings.
type SelectionParseError struct {
	Response string
	Err      error
}

func (e *SelectionParseError) Error() string {
	return fmt.Sprintf("parse chapter selection %q: %v", truncate(e.Response, 120), e.Err)
}

func (e *SelectionParseError) Unwrap() error { return e.Err }

// ParseChapterList decodes a JSON array of strings from a model response.
// The whole response is tried first, then the JSON value starting at each '[' in order.
func ParseChapterList(response string) ([]string, error) {
	trimmed := strings.TrimSpace(response)
	var out []string
	err := json.Unmarshal([]byte(trimmed), &out)
	if err == nil && out != nil {
		return out, nil
	}
	if err == nil {
		err = errors.New("response is not an array")
	}
	for i := strings.IndexByte(trimmed, '['); i >= 0; {
		var candidate []string
		if json.NewDecoder(strings.NewReader(trimmed[i:])).Decode(&candidate) == nil {
			return candidate, nil
		}
		next := strings.IndexByte(trimmed[i+1:], '[')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, &SelectionParseError{Response: response, Err: err}
}

type Verdict int

const (
	Reject Verdict = iota
	Accept
)

func (v Verdict) String() string {
	if v == Accept {
		return "ACCEPT"
	}
	return "REJECT"
}

// ParseVerdict maps a trimmed, case-sensitive YES/NO to a verdict.
func ParseVerdict(response string) (Verdict, error) {
	switch strings.TrimSpace(response) {
	case models.AcceptToken:
		return Accept, nil
	case models.RejectToken:
		return Reject, nil
	default:
		return Reject, ErrAmbiguousVerdict
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
