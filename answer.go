package ctfbot

import (
	"github.com/weixuan0110/ctfbot/chat"
)

const (
	// MentionAuthorOpt is the name of the option prefixing the answer with a mention of the message author
	MentionAuthorOpt = "mentionAuthor"
	// DirectOpt is the name of the option sending the answer as a direct message to the message author
	DirectOpt = "direct"
)

// Answer holds data of an Action's Answer: namely, its text, embeds and options
// to use when delivering it
type Answer struct {
	Text string

	// Embeds are sent after the text, one message each
	Embeds []chat.Embed

	// Options to apply when sending a message
	Options []AnswerOption
}

// AnswerOption defines a function applied to Answers
type AnswerOption func(sendOpts map[string]string)

// AnswerMentioningAuthor prefixes the answer with a mention of the author of the triggering message
func AnswerMentioningAuthor() AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[MentionAuthorOpt] = "true"
	}
}

// AnswerInDirect sends the answer as a direct message to the author of the triggering message
func AnswerInDirect() AnswerOption {
	return func(sendOpts map[string]string) {
		sendOpts[DirectOpt] = "true"
	}
}

// ApplyAnswerOpts applies answering options to build the send configuration
func ApplyAnswerOpts(opts ...AnswerOption) (sendOptions map[string]string) {
	sendOptions = make(map[string]string)
	for _, opt := range opts {
		opt(sendOptions)
	}

	return sendOptions
}
