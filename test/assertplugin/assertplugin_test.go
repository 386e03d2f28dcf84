package assertplugin_test

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/actions"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/plugin"
	"github.com/weixuan0110/ctfbot/schedule"
	"github.com/weixuan0110/ctfbot/test/assertanswer"
	"github.com/weixuan0110/ctfbot/test/assertplugin"
)

type myLittleTester struct {
	*ctfbot.Plugin

	reactions int
	ticks     int
	readyErr  error
}

func newLittleTester() (mlt *myLittleTester) {
	mlt = new(myLittleTester)
	mlt.Plugin = plugin.New("myLittleTester").
		WithCommand(actions.NewCommand().
			WithMatcher(actions.MatchCommand[command.UpcomingCTF]()).
			WithAnswerer(mlt.upcoming).
			Build()).
		WithCommand(actions.NewCommand().
			DirectOnly().
			WithMatcher(actions.MatchCommand[command.Ask]()).
			WithAnswerer(func(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
				return &ctfbot.Answer{Text: "sent"}
			}).
			Build()).
		WithHearAction(actions.NewHearAction().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				return strings.Contains(m.Content, "flag{")
			}).
			WithAnswerer(func(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
				return &ctfbot.Answer{Text: "nice"}
			}).
			Build()).
		WithHearAction(actions.NewHearAction().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				return strings.Contains(m.Content, "gg")
			}).
			WithAnswerer(func(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
				return &ctfbot.Answer{Text: "gg wp"}
			}).
			Build()).
		WithReactionAction(actions.NewReactionAction().
			WithEmoji("👍").
			WithAction(func(ctx context.Context, r *ctfbot.IncomingReaction) {
				mlt.reactions++
			}).
			Build()).
		WithScheduledAction(actions.NewScheduledAction().
			WithSchedule(schedule.Daily()).
			WithAction(func(ctx context.Context) {
				mlt.ticks++
			}).
			Build()).
		OnReady(func(ctx context.Context) error {
			return mlt.readyErr
		}).
		Build()

	return mlt
}

func (mlt *myLittleTester) upcoming(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	mlt.Logger.Debugf("a debug statement")

	return &ctfbot.Answer{Text: "No upcoming CTF events found."}
}

func guild(content string) chat.Message {
	return chat.Message{ChannelID: "C1", GuildID: "G1", AuthorID: "U1", Content: content}
}

func TestCommandResultNonValid(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, false, asserter.Answers(mlt.Plugin, guild(">ctf upcoming"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 10)
	}))
}

func TestCommandResultValid(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild(">ctf upcoming"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1) && assertanswer.HasText(t, answers[0], "No upcoming CTF events found.")
	}))
}

func TestCustomPrefix(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT, assertplugin.OptionPrefix("!"))
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild("!ctf upcoming"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1)
	}))
}

func TestLoggerAttached(t *testing.T) {
	mockT := new(testing.T)

	var b strings.Builder
	logger := log.New(&b, "", 0)
	asserter := assertplugin.New(mockT, assertplugin.OptionLog(logger))
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild(">ctf upcoming"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1) && assert.Equal(t, "a debug statement\n", b.String())
	}))
}

func TestUsageErrorIsAnswered(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild(">ctf create"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1) && assertanswer.HasTextContaining(t, answers[0], "Usage: >ctf create <event_id>")
	}))
}

func TestDirectOnlyCommand(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild(">ask where is the flag"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Empty(t, answers)
	}))

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, chat.Message{ChannelID: "D1", Content: ">ask where is the flag"}, func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1) && assertanswer.HasText(t, answers[0], "sent")
	}))
}

func TestMultipleHearAnswers(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Answers(mlt.Plugin, guild("gg, flag{found}"), func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 2) && assertanswer.HasText(t, answers[0], "nice") && assertanswer.HasText(t, answers[1], "gg wp")
	}))
}

func TestHandlesReaction(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.HandlesReaction(mlt.Plugin, chat.Reaction{Emoji: "👍"}, "B1"))
	assert.Equal(t, 1, mlt.reactions)

	assert.Equal(t, false, asserter.HandlesReaction(mlt.Plugin, chat.Reaction{Emoji: "🎉"}, "B1"))
	assert.Equal(t, 1, mlt.reactions)
}

func TestRunsOnSchedule(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.RunsOnSchedule(mlt.Plugin, schedule.Daily()))
	assert.Equal(t, 1, mlt.ticks)

	assert.Equal(t, false, asserter.RunsOnSchedule(mlt.Plugin, schedule.Definition{Interval: 1, Unit: schedule.Hours}))
	assert.Equal(t, 1, mlt.ticks)
}

func TestReadies(t *testing.T) {
	mockT := new(testing.T)
	asserter := assertplugin.New(mockT)
	mlt := newLittleTester()

	assert.Equal(t, true, asserter.Readies(mlt.Plugin))

	mlt.readyErr = errors.New("discord unavailable")
	assert.Equal(t, false, asserter.Readies(mlt.Plugin))
}
