package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/actions"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/plugin"
	"github.com/weixuan0110/ctfbot/tracker"
	"github.com/weixuan0110/ctfbot/writeup"
)

const (
	// WriteupsPluginName holds the identifying name of the writeups plugin
	WriteupsPluginName = "writeups"

	writeupWrongPlace = "This command can only be used in channels within a CTF or archive category."
	noWriteupsAnswer  = "No writeups found in this channel."
)

// Writeups publishes the writeups posted in event channels to the writeup repository
type Writeups struct {
	*ctfbot.Plugin

	messenger    chat.Messenger
	channels     chat.ChannelManager
	tracker      *tracker.Tracker
	publisher    *writeup.Publisher
	historyLimit int
}

// NewWriteups creates a new instance of the writeups plugin
func NewWriteups(driver chat.Driver, t *tracker.Tracker, publisher *writeup.Publisher, s Settings) (w *Writeups) {
	w = new(Writeups)
	w.messenger = driver
	w.channels = driver
	w.tracker = t
	w.publisher = publisher
	w.historyLimit = s.HistoryLimit

	w.Plugin = plugin.New(WriteupsPluginName).
		WithCommand(actions.NewCommand().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				_, ok := m.Command.(command.PublishWriteups)
				return ok && !m.Direct
			}).
			WithUsage("ctf writeup").
			WithDescriptionf("Publish the writeups posted in the current CTF channel (last %d messages)", w.historyLimit).
			WithAnswerer(w.publishChannel).
			Build()).
		WithHearAction(actions.NewHearAction().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				return !m.Direct && writeup.IsBlock(m.Content)
			}).
			WithUsage(fmt.Sprintf("%s writeup block %s", writeup.Delimiter, writeup.Delimiter)).
			WithDescription("Publish a writeup block right away. See `bot help writeup` for the format").
			WithAnswerer(w.publishInline).
			Build()).
		Build()

	return w
}

// tally counts the outcomes of a batch of publications
type tally struct {
	blocks   int
	outcomes map[writeup.Outcome]int
	problems []string
}

func (w *Writeups) publishChannel(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	category, err := w.tracker.CategoryName(ctx, m.ChannelID)
	if err != nil {
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to publish writeups: %v", err)}
	}

	if !tracker.IsYearCategory(category) {
		return &ctfbot.Answer{Text: writeupWrongPlace}
	}

	ch, err := w.channels.Channel(ctx, m.ChannelID)
	if err != nil {
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to publish writeups: %v", err)}
	}

	history, err := w.messenger.History(ctx, m.ChannelID, w.historyLimit)
	if err != nil {
		w.Logger.Printf("[%s] Unable to read history of [%s]: %v", WriteupsPluginName, ch.Name, err)
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to read the channel history: %v", err)}
	}

	year := w.tracker.Epoch().Year()
	t := tally{outcomes: make(map[writeup.Outcome]int)}

	// History is most recent first, publish in posting order
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.AuthorBot || !writeup.IsBlock(h.Content) {
			continue
		}

		t.blocks++
		r, err := writeup.Parse(h.Content)
		if err != nil {
			t.problems = append(t.problems, fmt.Sprintf("<@%s> %v", h.AuthorID, err))
			continue
		}

		if r.CTF == "" {
			r.CTF = ch.Name
		}

		res, err := w.publisher.Publish(ctx, year, r, h.AuthorName)
		if err != nil {
			w.Logger.Printf("[%s] Unable to publish [%s] of [%s]: %v", WriteupsPluginName, r.ChallengeName, h.AuthorName, err)
			t.problems = append(t.problems, fmt.Sprintf("<@%s> Failed to publish `%s`: %v", h.AuthorID, r.ChallengeName, err))
			continue
		}

		w.Logger.Debugf("[%s] Writeup [%s] %s", WriteupsPluginName, res.Path, res.Outcome)
		t.outcomes[res.Outcome]++
	}

	if t.blocks == 0 {
		return &ctfbot.Answer{Text: noWriteupsAnswer}
	}

	return &ctfbot.Answer{Text: t.summary()}
}

func (t tally) summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Processed %d writeups: %d created, %d updated, %d unchanged.", t.blocks, t.outcomes[writeup.Created], t.outcomes[writeup.Updated], t.outcomes[writeup.Exists])
	for _, p := range t.problems {
		fmt.Fprintf(&b, "\n%s", p)
	}

	return b.String()
}

// publishInline publishes a single block as soon as it's posted. The CTF header names the folder and
// defaults to the channel name when posted in an event channel
func (w *Writeups) publishInline(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	r, err := writeup.Parse(m.Content)

	var malformed *writeup.MalformedError
	if errors.As(err, &malformed) {
		return &ctfbot.Answer{Text: malformed.Error(), Options: []ctfbot.AnswerOption{ctfbot.AnswerMentioningAuthor()}}
	} else if err != nil {
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to process the request: %v", err), Options: []ctfbot.AnswerOption{ctfbot.AnswerMentioningAuthor()}}
	}

	if r.CTF == "" {
		category, err := w.tracker.CategoryName(ctx, m.ChannelID)
		if err != nil {
			return &ctfbot.Answer{Text: fmt.Sprintf("Failed to process the request: %v", err)}
		}

		// Outside of event channels, the block has to name its CTF
		if !tracker.IsYearCategory(category) {
			malformed = &writeup.MalformedError{Missing: []string{writeup.CTFKey}}
			return &ctfbot.Answer{Text: malformed.Error(), Options: []ctfbot.AnswerOption{ctfbot.AnswerMentioningAuthor()}}
		}

		ch, err := w.channels.Channel(ctx, m.ChannelID)
		if err != nil {
			return &ctfbot.Answer{Text: fmt.Sprintf("Failed to process the request: %v", err)}
		}

		r.CTF = ch.Name
	}

	res, err := w.publisher.Publish(ctx, w.tracker.Epoch().Year(), r, m.AuthorName)
	if err != nil {
		w.Logger.Printf("[%s] Unable to publish [%s] of [%s]: %v", WriteupsPluginName, r.ChallengeName, m.AuthorName, err)
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to process the request: %v", err), Options: []ctfbot.AnswerOption{ctfbot.AnswerMentioningAuthor()}}
	}

	switch res.Outcome {
	case writeup.Updated:
		return &ctfbot.Answer{Text: fmt.Sprintf("Writeup `%s` updated successfully.", res.Path)}
	case writeup.Exists:
		return &ctfbot.Answer{Text: fmt.Sprintf("Writeup `%s` is already published.", res.Path)}
	}

	return &ctfbot.Answer{Text: fmt.Sprintf("Folder structure `%s` created successfully.", res.Path)}
}
