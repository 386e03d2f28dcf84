package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/actions"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/plugin"
	"github.com/weixuan0110/ctfbot/tracker"
)

const (
	// AskPluginName holds the identifying name of the ask plugin
	AskPluginName = "ask"

	anonymousFormat   = "**Anon:**\n```markdown\n%s\n```"
	sentAnonymously   = "Your message has been sent to %s anonymously."
	notMemberAnswer   = "You must be a member of the server to use this command."
	invalidChannel    = "Invalid channel '%s' for this command."
	defaultHelpTarget = "the help channel"
)

// Asker forwards questions sent in private to the bot to a public channel without revealing their author
type Asker struct {
	*ctfbot.Plugin

	messenger     chat.Messenger
	channels      chat.ChannelManager
	members       chat.MemberFinder
	tracker       *tracker.Tracker
	helpChannelID string
}

// NewAsker creates a new instance of the ask plugin. Membership of the askers is verified through members
// which is expected to cache lookups
func NewAsker(driver chat.Driver, members chat.MemberFinder, t *tracker.Tracker, s Settings) (a *Asker) {
	a = new(Asker)
	a.messenger = driver
	a.channels = driver
	a.members = members
	a.tracker = t
	a.helpChannelID = s.HelpChannelID

	a.Plugin = plugin.New(AskPluginName).
		WithCommand(actions.NewCommand().
			DirectOnly().
			WithMatcher(actions.MatchCommand[command.Ask]()).
			WithUsage("ask <question>").
			WithDescription("Send a question anonymously to the help channel").
			WithAnswerer(a.askHelp).
			Build()).
		WithCommand(actions.NewCommand().
			DirectOnly().
			WithMatcher(actions.MatchCommand[command.AskCTF]()).
			WithUsage("ask ctf <channel_name> <question>").
			WithDescription("Send a question anonymously to the channel of one of this year's CTFs").
			WithAnswerer(a.askCTF).
			Build()).
		Build()

	return a
}

func (a *Asker) askHelp(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	if answer := a.verifyMember(ctx, m.AuthorID); answer != nil {
		return answer
	}

	c := m.Command.(command.Ask)

	name := defaultHelpTarget
	if ch, err := a.channels.Channel(ctx, a.helpChannelID); err != nil {
		a.Logger.Printf("[%s] Unable to look up help channel [%s]: %v", AskPluginName, a.helpChannelID, err)
	} else {
		name = ch.Name
	}

	return a.forward(ctx, a.helpChannelID, name, c.Text)
}

func (a *Asker) askCTF(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	if answer := a.verifyMember(ctx, m.AuthorID); answer != nil {
		return answer
	}

	c := m.Command.(command.AskCTF)
	epoch := a.tracker.Epoch()

	ch, found, err := a.tracker.FindChannel(ctx, c.Channel, epoch.ActiveCategory(), epoch.ArchiveCategory())
	if err != nil {
		a.Logger.Printf("[%s] Unable to look up channel [%s]: %v", AskPluginName, c.Channel, err)
		return privately(fmt.Sprintf("Failed to look up channel '%s': %v", c.Channel, err))
	}

	if !found {
		return privately(fmt.Sprintf(invalidChannel, c.Channel))
	}

	return a.forward(ctx, ch.ID, ch.Name, c.Text)
}

// verifyMember returns the answer to give to a user that isn't a server member or nil if they are
func (a *Asker) verifyMember(ctx context.Context, userID string) *ctfbot.Answer {
	_, err := a.members.Member(ctx, userID)
	if err == nil {
		return nil
	}

	if errors.Is(err, chat.ErrNotFound) {
		return privately(notMemberAnswer)
	}

	a.Logger.Printf("[%s] Unable to verify membership of [%s]: %v", AskPluginName, userID, err)
	return privately(fmt.Sprintf("Failed to verify your membership: %v", err))
}

func (a *Asker) forward(ctx context.Context, channelID string, channelName string, text string) *ctfbot.Answer {
	if _, err := a.messenger.Send(ctx, channelID, fmt.Sprintf(anonymousFormat, text)); err != nil {
		a.Logger.Printf("[%s] Unable to forward question to [%s]: %v", AskPluginName, channelID, err)
		return privately(fmt.Sprintf("Failed to send your message: %v", err))
	}

	return privately(fmt.Sprintf(sentAnonymously, channelName))
}

// privately answers the author in a direct message
func privately(text string) *ctfbot.Answer {
	return &ctfbot.Answer{Text: text, Options: []ctfbot.AnswerOption{ctfbot.AnswerInDirect()}}
}
