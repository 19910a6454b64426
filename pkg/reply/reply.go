// Package reply turns raw model output into structured reply segments and
// decodes the slash-command convention shared by users and the model.
package reply

import (
	"strings"

	"github.com/teslashibe/go-converse/pkg/chat"
)

const fence = "```"

// Reply is the structured form of one model response.
type Reply struct {
	Text string
	Code *chat.CodeBlock
}

// Empty reports whether the reply has nothing to show.
func (r Reply) Empty() bool {
	return r.Text == "" && r.Code == nil
}

// Parse extracts the first fenced code block from raw, if any.
//
// A fence is a triple backtick, an optional language tag on the same line,
// a newline, the body, and a closing triple backtick at the start of a line.
// Text before the opener becomes the prose segment. Anything after the
// closer is dropped.
func Parse(raw string) Reply {
	for from := 0; ; {
		i := strings.Index(raw[from:], fence)
		if i < 0 {
			break
		}
		open := from + i
		if lang, body, ok := matchFence(raw[open+len(fence):]); ok {
			return Reply{
				Text: strings.TrimSpace(raw[:open]),
				Code: &chat.CodeBlock{Language: lang, Content: strings.TrimSpace(body)},
			}
		}
		from = open + 1
	}
	return Reply{Text: strings.TrimSpace(raw)}
}

// matchFence tries to read "<lang>\n<body>\n```" from s, where s starts
// right after an opening fence.
func matchFence(s string) (lang, body string, ok bool) {
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return "", "", false
	}
	lang = strings.TrimRight(s[:nl], "\r")
	if strings.ContainsAny(lang, " \t`") {
		return "", "", false
	}

	rest := s[nl+1:]
	if strings.HasPrefix(rest, fence) {
		return lang, "", true
	}
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return "", "", false
	}
	return lang, rest[:end], true
}
