// Package command parses chat text into the commands understood by the bot. Parsing happens once, at the
// boundary: handlers receive a typed Command and never look at the raw text again.
//
// The grammar, with > being the configurable prefix:
//
//	>ask <text>
//	>ask ctf <channel> <text>
//	>ctf create <eventID>
//	>ctf archive
//	>ctf upcoming
//	>ctf writeup
//	>bot help [writeup]
//
// Keywords are case-sensitive and the first one directly follows the prefix.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Command is implemented by every parsed command
type Command interface {
	// Name returns the keyword path of the command (i.e. "ctf create")
	Name() string
}

// Ask forwards an anonymous question to the default help channel
type Ask struct {
	Text string
}

// AskCTF forwards an anonymous question to a named CTF channel
type AskCTF struct {
	Channel string
	Text    string
}

// CreateCTF provisions the channel, role, scheduled event and announcement of an event
type CreateCTF struct {
	EventID string
}

// ArchiveCTF moves the current channel to the archive category
type ArchiveCTF struct{}

// UpcomingCTF lists upcoming events
type UpcomingCTF struct{}

// PublishWriteups scans the current channel history for writeups and publishes them
type PublishWriteups struct{}

// Help returns usage instructions. Topic is empty for the general help
type Help struct {
	Topic string
}

func (Ask) Name() string             { return "ask" }
func (AskCTF) Name() string          { return "ask ctf" }
func (CreateCTF) Name() string       { return "ctf create" }
func (ArchiveCTF) Name() string      { return "ctf archive" }
func (UpcomingCTF) Name() string     { return "ctf upcoming" }
func (PublishWriteups) Name() string { return "ctf writeup" }
func (Help) Name() string            { return "bot help" }

// Help topics
const (
	WriteupTopic = "writeup"
)

var (
	// ErrNotCommand is returned when the text doesn't start with the command prefix
	ErrNotCommand = errors.New("not a command")

	// ErrUnknownCommand is returned when the first keyword isn't part of the grammar. Those are silently ignored
	ErrUnknownCommand = errors.New("unknown command")
)

// UsageError is returned for a recognized keyword used with a malformed or missing argument
type UsageError struct {
	Usage  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("Usage: %s", e.Usage)
	}

	return fmt.Sprintf("%s. Usage: %s", e.Reason, e.Usage)
}

// Usage strings without the prefix
const (
	askUsage     = "ask <question>"
	askCTFUsage  = "ask ctf <channel_name> <question>"
	createUsage  = "ctf create <event_id>"
	ctfUsage     = "ctf create <event_id> | ctf archive | ctf upcoming | ctf writeup"
	botUsage     = "bot help [writeup]"
	commandUsage = "ask | ctf | bot help"
)

// Parse parses text into a Command. It returns ErrNotCommand if text doesn't start with prefix
// immediately followed by a keyword,
// ErrUnknownCommand if the first keyword is unknown and a *UsageError when a known command is malformed
func Parse(prefix string, text string) (c Command, err error) {
	if prefix == "" || len(text) < len(prefix) || text[:len(prefix)] != prefix {
		return nil, ErrNotCommand
	}

	// "> text" is a quote block, the keyword has to follow the prefix
	body := text[len(prefix):]
	if body != "" && unicode.IsSpace(rune(body[0])) && strings.TrimSpace(body) != "" {
		return nil, ErrNotCommand
	}

	p := newParser(prefix, body)
	keyword, ok := p.next()
	if !ok {
		return nil, p.usage(commandUsage, "Empty command")
	}

	switch keyword {
	case "ask":
		return p.parseAsk()
	case "ctf":
		return p.parseCTF()
	case "bot":
		return p.parseBot()
	}

	return nil, ErrUnknownCommand
}

type parser struct {
	prefix string
	t      *tokenizer
}

func newParser(prefix string, body string) (p *parser) {
	p = new(parser)
	p.prefix = prefix
	p.t = newTokenizer(body)

	return p
}

func (p *parser) next() (tok string, ok bool) {
	t, ok := p.t.next()
	return t.text, ok
}

func (p *parser) usage(usage string, reason string) *UsageError {
	return &UsageError{Usage: p.prefix + usage, Reason: reason}
}

func (p *parser) parseAsk() (c Command, err error) {
	rest := p.t.rest()
	if rest == "" {
		return nil, p.usage(askUsage, "Missing question")
	}

	if t, ok := p.t.peek(); !ok || t.text != "ctf" {
		return Ask{Text: rest}, nil
	}

	p.t.next()
	channel, ok := p.next()
	if !ok {
		return nil, p.usage(askCTFUsage, "Missing channel name")
	}

	text := p.t.rest()
	if text == "" {
		return nil, p.usage(askCTFUsage, "Missing question")
	}

	return AskCTF{Channel: channel, Text: text}, nil
}

func (p *parser) parseCTF() (c Command, err error) {
	sub, ok := p.next()
	if !ok {
		return nil, p.usage(ctfUsage, "Missing sub-command")
	}

	switch sub {
	case "create":
		id, ok := p.next()
		if !ok {
			return nil, p.usage(createUsage, "Missing event id")
		}

		if !isDigits(id) {
			return nil, p.usage(createUsage, fmt.Sprintf("Invalid event id [%s]", id))
		}

		return CreateCTF{EventID: id}, nil
	case "archive":
		return ArchiveCTF{}, nil
	case "upcoming":
		return UpcomingCTF{}, nil
	case "writeup":
		return PublishWriteups{}, nil
	}

	return nil, p.usage(ctfUsage, fmt.Sprintf("Unknown sub-command [%s]", sub))
}

func (p *parser) parseBot() (c Command, err error) {
	sub, ok := p.next()
	if !ok || sub != "help" {
		return nil, p.usage(botUsage, "")
	}

	topic, ok := p.next()
	if !ok {
		return Help{}, nil
	}

	if topic != WriteupTopic {
		return nil, p.usage(botUsage, fmt.Sprintf("Unknown help topic [%s]", topic))
	}

	return Help{Topic: topic}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return s != ""
}
