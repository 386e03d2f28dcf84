/*
Package actions provides a fluent API for creating ctfbot plugin actions. Typical usages
will also involve using the plugin fluent API from github.com/weixuan0110/ctfbot/plugin.

Plugin examples using this API can be found in github.com/weixuan0110/ctfbot/plugins but
a quick one could look like:

	func newPlugin() (p *ctfbot.Plugin) {
		p = plugin.New("upcoming").
			WithCommand(actions.NewCommand().
				WithMatcher(actions.MatchCommand[command.UpcomingCTF]()).
				WithUsage("ctf upcoming").
				WithDescription("List the upcoming events").
				WithAnswerer(func(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
					return &ctfbot.Answer{Text: "Nothing yet"}
				}).
				Build()).
			WithReactionAction(actions.NewReactionAction().
				WithEmoji("👍").
				WithAction(grantAccess).
				Build()).
			WithScheduledAction(actions.NewScheduledAction().
				WithSchedule(schedule.Daily()).
				WithDescription("Roll over the year categories").
				WithAction(reconcile).
				Build()).
			Build()
		return p
	}
*/
package actions

import (
	"context"
	"fmt"

	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/schedule"
)

// ActionBuilder holds the action to build
type ActionBuilder struct {
	action ctfbot.ActionDefinition
}

// ReactionActionBuilder holds the reaction action to build
type ReactionActionBuilder struct {
	reactionAction ctfbot.ReactionActionDefinition
}

// ScheduledActionBuilder holds the scheduled action to build
type ScheduledActionBuilder struct {
	scheduledAction ctfbot.ScheduledActionDefinition
}

var (
	// Default to always match. Returning nil from the Answerer covers the cases where
	// matching needs the same extraction work as answering
	defaultMatcher = func(m *ctfbot.IncomingMessage) bool {
		return true
	}

	// Default to always return nil. This is not a default you want to use in most cases
	defaultAnswerer = func(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
		return nil
	}
)

// MatchCommand returns a Matcher accepting messages parsed as a command of type T
func MatchCommand[T command.Command]() ctfbot.Matcher {
	return func(m *ctfbot.IncomingMessage) bool {
		_, ok := m.Command.(T)
		return ok
	}
}

// newAction creates a new action and returns the ActionBuilder to set various attributes
// of the action. When done with the setup, the caller is expected to call Build() to get
// the action
func newAction() (ab *ActionBuilder) {
	ab = new(ActionBuilder)
	ab.action = ctfbot.ActionDefinition{Hidden: false}

	ab.action.Match = defaultMatcher
	ab.action.Answer = defaultAnswerer

	return ab
}

// NewCommand returns a new ActionBuilder to build a new command
func NewCommand() (ab *ActionBuilder) {
	return newAction()
}

// NewHearAction returns a new ActionBuilder to build a new hear action
func NewHearAction() (ab *ActionBuilder) {
	return newAction()
}

// WithMatcher sets the action's matcher function
func (ab *ActionBuilder) WithMatcher(matcher ctfbot.Matcher) *ActionBuilder {
	ab.action.Match = matcher
	return ab
}

// WithUsage sets the action usage
func (ab *ActionBuilder) WithUsage(usage string) *ActionBuilder {
	ab.action.Usage = usage
	return ab
}

// WithDescription sets the action description
func (ab *ActionBuilder) WithDescription(description string) *ActionBuilder {
	ab.action.Description = description
	return ab
}

// WithDescriptionf sets the action description delegating format and arguments to fmt.Sprintf
func (ab *ActionBuilder) WithDescriptionf(format string, a ...interface{}) *ActionBuilder {
	ab.action.Description = fmt.Sprintf(format, a...)
	return ab
}

// WithAnswerer sets the action's answerer function
func (ab *ActionBuilder) WithAnswerer(answerer ctfbot.Answerer) *ActionBuilder {
	ab.action.Answer = answerer
	return ab
}

// Hidden sets the action to hidden
func (ab *ActionBuilder) Hidden() *ActionBuilder {
	ab.action.Hidden = true
	return ab
}

// DirectOnly restricts the action to direct messages
func (ab *ActionBuilder) DirectOnly() *ActionBuilder {
	ab.action.DirectOnly = true
	return ab
}

// Build returns the ActionDefinition
func (ab *ActionBuilder) Build() ctfbot.ActionDefinition {
	return ab.action
}

// NewReactionAction returns a new ReactionActionBuilder. Without an emoji, the action runs on every reaction
func NewReactionAction() (rab *ReactionActionBuilder) {
	rab = new(ReactionActionBuilder)
	rab.reactionAction.Action = func(ctx context.Context, r *ctfbot.IncomingReaction) {}

	return rab
}

// WithEmoji restricts the reaction action to one emoji
func (rab *ReactionActionBuilder) WithEmoji(emoji string) *ReactionActionBuilder {
	rab.reactionAction.Emoji = emoji
	return rab
}

// WithDescription sets the reaction action description
func (rab *ReactionActionBuilder) WithDescription(desc string) *ReactionActionBuilder {
	rab.reactionAction.Description = desc
	return rab
}

// WithAction sets the function to run on matching reactions
func (rab *ReactionActionBuilder) WithAction(action ctfbot.ReactionAction) *ReactionActionBuilder {
	rab.reactionAction.Action = action
	return rab
}

// Hidden sets the reaction action to hidden
func (rab *ReactionActionBuilder) Hidden() *ReactionActionBuilder {
	rab.reactionAction.Hidden = true
	return rab
}

// Build returns the ReactionActionDefinition
func (rab *ReactionActionBuilder) Build() ctfbot.ReactionActionDefinition {
	return rab.reactionAction
}

// NewScheduledAction returns a new ScheduledActionBuilder to build a new ScheduledActionDefinition
func NewScheduledAction() (sab *ScheduledActionBuilder) {
	sab = new(ScheduledActionBuilder)
	sab.scheduledAction = ctfbot.ScheduledActionDefinition{Hidden: false}
	sab.scheduledAction.Action = func(ctx context.Context) {}

	return sab
}

// WithSchedule sets the schedule for the scheduled action
func (sab *ScheduledActionBuilder) WithSchedule(schedule schedule.Definition) *ScheduledActionBuilder {
	sab.scheduledAction.Schedule = schedule
	return sab
}

// WithDescription sets the scheduled action description
func (sab *ScheduledActionBuilder) WithDescription(desc string) *ScheduledActionBuilder {
	sab.scheduledAction.Description = desc
	return sab
}

// WithDescriptionf sets the scheduled action description delegating format and arguments to fmt.Sprintf
func (sab *ScheduledActionBuilder) WithDescriptionf(format string, a ...interface{}) *ScheduledActionBuilder {
	sab.scheduledAction.Description = fmt.Sprintf(format, a...)
	return sab
}

// WithAction sets the action function to run on schedule
func (sab *ScheduledActionBuilder) WithAction(action ctfbot.ScheduledAction) *ScheduledActionBuilder {
	sab.scheduledAction.Action = action
	return sab
}

// Hidden sets the scheduled action to hidden
func (sab *ScheduledActionBuilder) Hidden() *ScheduledActionBuilder {
	sab.scheduledAction.Hidden = true
	return sab
}

// Build returns the ScheduledActionDefinition
func (sab *ScheduledActionBuilder) Build() ctfbot.ScheduledActionDefinition {
	return sab.scheduledAction
}
