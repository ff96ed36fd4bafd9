// Package llmutils provides small helpers for working with LLM inputs and
// outputs: lenient JSON extraction and content accounting.
package llmutils

import (
	"bytes"
	"encoding/json"

	"github.com/papermind-ai/papermind/pkg/llms"
)

// CleanJSON returns JSON by trimming prefixes and postfixes.
// Models sometimes wrap arguments like `Here you go: {json}`.
func CleanJSON(bs []byte) []byte {
	return trimPostfixAfterJSON(trimPrefixBeforeJSON(bs))
}

// Removes any prefixes before the JSON (like "Sure, here you go:")
func trimPrefixBeforeJSON(bs []byte) []byte {
	startObject := bytes.IndexByte(bs, '{')
	startArray := bytes.IndexByte(bs, '[')

	var start int
	if startObject == -1 && startArray == -1 {
		return bs
	} else if startObject == -1 {
		start = startArray
	} else if startArray == -1 {
		start = startObject
	} else {
		start = min(startObject, startArray)
	}

	return bs[start:]
}

// Removes any postfixes after the JSON
func trimPostfixAfterJSON(bs []byte) []byte {
	endObject := bytes.LastIndexByte(bs, '}')
	endArray := bytes.LastIndexByte(bs, ']')

	var end int
	if endObject == -1 && endArray == -1 {
		return bs
	} else if endObject == -1 {
		end = endArray
	} else if endArray == -1 {
		end = endObject
	} else {
		end = max(endObject, endArray)
	}

	return bs[:end+1]
}

// ToJSON marshals the value without error handling, for logging and prompts.
func ToJSON(val any) string {
	bs, _ := json.Marshal(val)
	return string(bs)
}

// ToJSONIndent marshals the value with indentation.
func ToJSONIndent(val any) string {
	bs, _ := json.MarshalIndent(val, "", "  ")
	return string(bs)
}

// BackticksJSON wraps the JSON in a fenced code block.
func BackticksJSON(js string) string {
	return "```json\n" + js + "\n```"
}

// CountMessagesContentSize returns the total byte size of text, tool call and
// tool response parts across the given messages.
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var total uint64
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				total += uint64(len(typ.Text))
			case llms.ToolCall:
				if typ.FunctionCall != nil {
					total += uint64(len(typ.FunctionCall.Name) + len(typ.FunctionCall.Arguments))
				}
			case llms.ToolCallResponse:
				total += uint64(len(typ.Content))
			}
		}
	}
	return total
}
