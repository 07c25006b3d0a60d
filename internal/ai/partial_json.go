package ai

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
)

const (
	objectKey   = iota // expecting a key or '}'
	objectColon        // key read, expecting ':'
	objectValue        // expecting a value
	objectNext         // value read, expecting ',' or '}'
	arrayValue         // expecting a value or ']'
	arrayNext          // value read, expecting ',' or ']'
)

type jsonFrame struct {
	closer byte
	state  int
}

// CompletePartialJSON closes a truncated json document so that it parses.
// The result keeps the longest prefix whose values are complete, except for
// string values which may be cut mid-way. Keys without a value are dropped.
// Returns false if no prefix of the input can be completed.
func CompletePartialJSON(s string) (string, bool) {
	prefix, ok := safePrefix(s)
	if !ok {
		return "", false
	}
	repaired, err := jsonrepair.JSONRepair(prefix)
	if err != nil || !json.Valid([]byte(repaired)) {
		return "", false
	}
	return repaired, true
}

// safePrefix cuts s back to the last point where every value written so far
// is either complete or a string, closing an open string itself. jsonrepair
// moves the closing quote of a string that ends in a delimiter, so only
// brackets are left for it to add.
func safePrefix(s string) (string, bool) {
	var (
		stack      []jsonFrame
		safeIdx    int
		safeQuote  bool
		haveSafe   bool
		inString   bool
		isKey      bool
		escape     bool
		hexPending int
	)

	mark := func(idx int, quote bool) {
		safeIdx = idx
		safeQuote = quote
		haveSafe = true
	}
	cut := func() (string, bool) {
		if !haveSafe {
			return "", false
		}
		if safeQuote {
			return s[:safeIdx] + `"`, true
		}
		return s[:safeIdx], true
	}

	// valueDone advances the enclosing container after a complete value.
	valueDone := func() {
		if len(stack) == 0 {
			return
		}
		top := &stack[len(stack)-1]
		if top.closer == '}' {
			top.state = objectNext
		} else {
			top.state = arrayNext
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case hexPending > 0:
				hexPending--
			case escape:
				escape = false
				if c == 'u' {
					hexPending = 4
				}
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
				if isKey {
					stack[len(stack)-1].state = objectColon
				} else {
					valueDone()
					mark(i+1, false)
				}
				continue
			case c >= utf8.RuneSelf:
				// Never cut a multi byte character in half.
				if !utf8.FullRuneInString(s[i:]) {
					return cut()
				}
				_, size := utf8.DecodeRuneInString(s[i:])
				i += size - 1
			}
			if !isKey && !escape && hexPending == 0 {
				mark(i+1, true)
			}
			continue
		}

		switch c {
		case ' ', '\t', '\n', '\r':
		case '{':
			stack = append(stack, jsonFrame{closer: '}', state: objectKey})
			mark(i+1, false)
		case '[':
			stack = append(stack, jsonFrame{closer: ']', state: arrayValue})
			mark(i+1, false)
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].closer != c {
				return cut()
			}
			stack = stack[:len(stack)-1]
			valueDone()
			mark(i+1, false)
		case '"':
			inString = true
			isKey = len(stack) > 0 && stack[len(stack)-1].closer == '}' && stack[len(stack)-1].state == objectKey
			if !isKey {
				mark(i+1, true)
			}
		case ':':
			if len(stack) > 0 && stack[len(stack)-1].state == objectColon {
				stack[len(stack)-1].state = objectValue
			}
		case ',':
			if len(stack) > 0 {
				top := &stack[len(stack)-1]
				if top.closer == '}' {
					top.state = objectKey
				} else {
					top.state = arrayValue
				}
			}
		default:
			end := i
			for end < len(s) && !strings.ContainsRune(" \t\n\r,]}", rune(s[end])) {
				end++
			}
			token := s[i:end]
			if !json.Valid([]byte(token)) {
				// A literal or number still being written.
				return cut()
			}
			valueDone()
			mark(end, false)
			i = end - 1
		}
	}

	return cut()
}
