package assertplugin

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/schedule"
)

const defaultPrefix = ">"

// Asserter represents a plugin driver/asserter and holds the command prefix that tests are using when
// sending test messages for processing
type Asserter struct {
	t      *testing.T
	prefix string
	logger *log.Logger
}

// New creates a new asserter reporting to t
func New(t *testing.T, options ...Option) (a *Asserter) {
	a = new(Asserter)
	a.t = t
	a.prefix = defaultPrefix

	for _, option := range options {
		option(a)
	}

	return a
}

// Option defines an option for the Asserter
type Option func(*Asserter)

// OptionLog sets a logger for the asserter such that this logger is attached to the plugin when driven by
// the asserter
func OptionLog(logger *log.Logger) func(*Asserter) {
	return func(a *Asserter) {
		a.logger = logger
	}
}

// OptionPrefix sets the command prefix. Defaults to ">"
func OptionPrefix(prefix string) func(*Asserter) {
	return func(a *Asserter) {
		a.prefix = prefix
	}
}

// ResultValidator is a function to do further validation of the answers resulting from a plugin processing
// a message. The return value is meant to be true if validation is successful and false otherwise (following
// the testify convention)
type ResultValidator func(t *testing.T, answers []*ctfbot.Answer) bool

// Answers drives a plugin with m and collects its answers before passing them to validate. A malformed
// command results in a single answer carrying its usage, like the engine does
func (a *Asserter) Answers(p *ctfbot.Plugin, m chat.Message, validate ResultValidator) (valid bool) {
	a.attachLogger(p)

	in := &ctfbot.IncomingMessage{Message: m, Direct: m.GuildID == ""}
	cmd, err := command.Parse(a.prefix, m.Content)

	var usageErr *command.UsageError
	switch {
	case err == nil:
		in.Command = cmd
		return validate(a.t, runActions(p.Commands, in))
	case errors.Is(err, command.ErrNotCommand):
		return validate(a.t, runActions(p.HearActions, in))
	case errors.As(err, &usageErr):
		return validate(a.t, []*ctfbot.Answer{{Text: usageErr.Error()}})
	}

	return validate(a.t, []*ctfbot.Answer{})
}

// HandlesReaction drives the plugin's reaction actions matching the reaction's emoji and asserts that
// at least one of them ran
func (a *Asserter) HandlesReaction(p *ctfbot.Plugin, r chat.Reaction, selfID string) (valid bool) {
	a.attachLogger(p)

	in := &ctfbot.IncomingReaction{Reaction: r, SelfID: selfID}
	ran := 0
	for _, action := range p.ReactionActions {
		if action.Emoji != "" && action.Emoji != r.Emoji {
			continue
		}

		action.Action(context.Background(), in)
		ran++
	}

	return assert.Truef(a.t, ran > 0, "No reaction action of plugin [%s] handles [%s]", p.Name, r.Emoji)
}

// RunsOnSchedule runs the plugin's scheduled actions with the given schedule and asserts that at least
// one of them exists
func (a *Asserter) RunsOnSchedule(p *ctfbot.Plugin, sd schedule.Definition) (valid bool) {
	a.attachLogger(p)

	ran := 0
	for _, sa := range p.ScheduledActions {
		if sa.Schedule == sd {
			sa.Action(context.Background())
			ran++
		}
	}

	return assert.Truef(a.t, ran > 0, "No scheduled action of plugin [%s] runs [%s]", p.Name, sd)
}

// Readies runs the plugin's OnReady action and asserts that it succeeds
func (a *Asserter) Readies(p *ctfbot.Plugin) (valid bool) {
	a.attachLogger(p)

	if !assert.NotNilf(a.t, p.OnReady, "Plugin [%s] has no ready action", p.Name) {
		return false
	}

	return assert.NoError(a.t, p.OnReady(context.Background()))
}

func (a *Asserter) attachLogger(p *ctfbot.Plugin) {
	p.Logger = ctfbot.NewSLogger(getLogger(a), true)
}

func getLogger(a *Asserter) (logger *log.Logger) {
	if a.logger != nil {
		return a.logger
	}

	return log.New(io.Discard, "", 0)
}

func runActions(actions []ctfbot.ActionDefinition, m *ctfbot.IncomingMessage) (answers []*ctfbot.Answer) {
	answers = make([]*ctfbot.Answer, 0)

	for _, action := range actions {
		if action.DirectOnly && !m.Direct {
			continue
		}

		if action.Match(m) {
			a := action.Answer(context.Background(), m)

			if a != nil {
				answers = append(answers, a)
			}
		}
	}

	return answers
}
