package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Record is one opaque result object, kept as the raw JSON the API returned.
type Record = json.RawMessage

// snippetLen bounds the body excerpt kept on malformed responses.
const snippetLen = 200

// searchResponse is the subset of the response envelope the scanner reads.
type searchResponse struct {
	Data json.RawMessage            `json:"data"`
	Meta map[string]json.RawMessage `json:"meta"`
}

// decodePage parses a response body. page-count is only honoured when it is
// a positive integer; anything else means exactly one page. The top level
// must be a JSON object; null or any other value is malformed.
func decodePage(body []byte, page int) (PageResult, *SearchError) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return PageResult{}, malformed(body, "decode response", errors.New("top level is not a JSON object"))
	}

	var env searchResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return PageResult{}, malformed(body, "decode response", err)
	}

	var records []Record
	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &records); err != nil {
			return PageResult{}, malformed(body, "decode data array", err)
		}
	}

	return PageResult{
		Records:    records,
		PageNumber: page,
		TotalPages: parsePageCount(env.Meta["page-count"]),
	}, nil
}

func parsePageCount(raw json.RawMessage) int {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 1
	}
	// Integer literals only: "3.0", "3e0" and "\"3\"" are rejected.
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func malformed(body []byte, msg string, err error) *SearchError {
	snippet := body
	if len(snippet) > snippetLen {
		cut := snippetLen
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &SearchError{
		Kind:    KindMalformed,
		Message: msg,
		Snippet: string(snippet),
		Err:     err,
	}
}
