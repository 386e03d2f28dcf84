// Package writeup parses writeup blocks posted in event channels and publishes them to a content store
package writeup

import (
	"fmt"
	"strings"
)

// Delimiter opens and closes a writeup block
const Delimiter = "---"

// Recognized header keys
const (
	CTFKey           = "CTF"
	CategoryKey      = "Category"
	ChallengeNameKey = "Challenge Name"
	separatorField   = "blank line before the content"
)

// Record is a parsed writeup
type Record struct {
	CTF           string
	Category      string
	ChallengeName string
	Body          string
}

// MalformedError is returned for blocks that can't be turned into a Record. Missing names the
// required parts that weren't found
type MalformedError struct {
	Missing []string
	Reason  string
}

// Error returns the reason the block is malformed
func (e *MalformedError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("Malformed writeup: %s", e.Reason)
	}

	return fmt.Sprintf("Malformed writeup, missing %s", strings.Join(e.Missing, ", "))
}

// IsBlock returns true if text is delimited like a writeup block. It doesn't validate the content
func IsBlock(text string) bool {
	lines := nonEmptyBounds(splitLines(text))
	return len(lines) >= 2 && isDelimiter(lines[0]) && isDelimiter(lines[len(lines)-1])
}

// Parse parses a writeup block:
//
//	---
//	Category: Crypto
//	Challenge Name: Baby RSA
//
//	Content of the writeup
//	---
//
// Header lines come first and the first blank line after them starts the body. Anything missing
// results in a *MalformedError
func Parse(text string) (r Record, err error) {
	lines := nonEmptyBounds(splitLines(text))
	if len(lines) < 2 || !isDelimiter(lines[0]) || !isDelimiter(lines[len(lines)-1]) {
		return r, &MalformedError{Reason: fmt.Sprintf("the first and last lines must be %s", Delimiter)}
	}

	inner := lines[1 : len(lines)-1]
	bodyStart := -1
	for i, line := range inner {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			bodyStart = i + 1
			break
		}

		if v, ok := headerValue(trimmed, CTFKey); ok {
			r.CTF = v
		} else if v, ok := headerValue(trimmed, CategoryKey); ok {
			r.Category = v
		} else if v, ok := headerValue(trimmed, ChallengeNameKey); ok {
			r.ChallengeName = v
		}
	}

	missing := make([]string, 0)
	if r.Category == "" {
		missing = append(missing, CategoryKey)
	}
	if r.ChallengeName == "" {
		missing = append(missing, ChallengeNameKey)
	}
	if bodyStart < 0 {
		missing = append(missing, separatorField)
	}

	if len(missing) > 0 {
		return Record{}, &MalformedError{Missing: missing}
	}

	r.Body = strings.Join(inner[bodyStart:], "\n")

	return r, nil
}

// Format returns the block representation of r. Parsing the result yields r
func Format(r Record) string {
	var b strings.Builder

	b.WriteString(Delimiter + "\n")
	if r.CTF != "" {
		fmt.Fprintf(&b, "%s: %s\n", CTFKey, r.CTF)
	}
	fmt.Fprintf(&b, "%s: %s\n", CategoryKey, r.Category)
	fmt.Fprintf(&b, "%s: %s\n", ChallengeNameKey, r.ChallengeName)
	b.WriteString("\n")
	b.WriteString(r.Body)
	b.WriteString("\n" + Delimiter)

	return b.String()
}

// FormatHelp returns the help text describing the block format
func FormatHelp() string {
	example := Format(Record{Category: "<category>", ChallengeName: "<challenge name>", Body: "<your writeup in markdown>"})
	return fmt.Sprintf("Post your writeup in the event channel using this format:\n```\n%s\n```\nThe blank line after the header is required. "+
		"Writeups are published to the repository when someone runs the writeup command in the channel.", example)
}

func headerValue(line string, key string) (value string, ok bool) {
	prefix := key + ":"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}

	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

func isDelimiter(line string) bool {
	return strings.TrimSpace(line) == Delimiter
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// nonEmptyBounds drops leading and trailing blank lines
func nonEmptyBounds(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	return lines[start:end]
}
