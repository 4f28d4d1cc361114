package chat

import (
	"encoding/json"
	"strings"
)

// replyMatcher extracts a reply from one response shape. body is the raw
// response; parsed is its JSON decoding, nil when body is not JSON.
type replyMatcher func(body []byte, parsed interface{}) (string, bool)

// replyMatchers are tried in order; the first match wins
var replyMatchers = []replyMatcher{
	plainText,
	field("reply"),
	field("message"),
	field("text"),
	firstChoice,
}

// ExtractReply finds the reply text in a chat backend response body
func ExtractReply(body []byte) (string, bool) {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = nil
	}

	for _, match := range replyMatchers {
		if reply, ok := match(body, parsed); ok {
			return reply, true
		}
	}
	return "", false
}

// plainText matches a body that is not JSON, or is a JSON string
func plainText(body []byte, parsed interface{}) (string, bool) {
	if parsed == nil {
		if json.Valid(body) {
			return "", false
		}
		return nonEmpty(string(body))
	}
	if s, ok := parsed.(string); ok {
		return nonEmpty(s)
	}
	return "", false
}

// field matches an object with a string value under key
func field(key string) replyMatcher {
	return func(_ []byte, parsed interface{}) (string, bool) {
		obj, ok := parsed.(map[string]interface{})
		if !ok {
			return "", false
		}
		s, ok := obj[key].(string)
		if !ok {
			return "", false
		}
		return nonEmpty(s)
	}
}

// firstChoice matches the OpenAI chat completion shape
// {"choices": [{"message": {"content": "..."}}]}
func firstChoice(_ []byte, parsed interface{}) (string, bool) {
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return "", false
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	msg, ok := choice["message"].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	if !ok {
		return "", false
	}
	return nonEmpty(content)
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
