package ctfbot

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/schedule"
	"github.com/weixuan0110/ctfbot/test/capture"
)

func newPluginWithActionsOfAllTypes() (p *Plugin) {
	p = new(Plugin)
	p.Name = "archiver"
	p.Commands = []ActionDefinition{{
		Match: func(m *IncomingMessage) bool {
			_, ok := m.Command.(command.ArchiveCTF)
			return ok
		},
		Usage:       "ctf archive",
		Description: "Move the current channel to the archive",
		Answer: func(ctx context.Context, m *IncomingMessage) *Answer {
			return nil
		}}, {
		Hidden: true,
		Match: func(m *IncomingMessage) bool {
			return false
		},
		Usage:       "secret",
		Description: "Never listed",
		Answer: func(ctx context.Context, m *IncomingMessage) *Answer {
			return nil
		}}}

	p.HearActions = []ActionDefinition{{
		Match: func(m *IncomingMessage) bool {
			return strings.Contains(m.Content, "flag{")
		},
		Usage:       "flag{...}",
		Description: "React to captured flags",
		Answer: func(ctx context.Context, m *IncomingMessage) *Answer {
			return nil
		}}}

	p.ScheduledActions = []ScheduledActionDefinition{
		{Schedule: schedule.Definition{Interval: 30, Unit: schedule.Seconds}, Description: "Sends a heartbeat every 30 seconds", Action: func(ctx context.Context) {}},
		{Hidden: true, Schedule: schedule.Daily(), Description: "Hidden chore", Action: func(ctx context.Context) {}},
	}

	return p
}

func TestFindAllActionsSkipsHidden(t *testing.T) {
	commands, hearActions, scheduled := findAllActions([]*Plugin{newPluginWithActionsOfAllTypes()})

	require.Len(t, commands, 1)
	assert.Equal(t, "ctf archive", commands[0].Usage)
	assert.Len(t, hearActions, 1)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "archiver", scheduled[0].plugin)
}

func TestHelpListsAllActionTypes(t *testing.T) {
	b, err := New("ctfbot", newTestConfig(), newFakeGateway(), capture.NewDriver(botID), OptionRegisterer(prometheus.NewRegistry()), OptionNoSignalHandling())
	require.NoError(t, err)
	b.RegisterPlugin(newPluginWithActionsOfAllTypes())

	help := b.newHelpPlugin("1.0.0")

	cmd := help.Commands[0]
	assert.False(t, cmd.Match(&IncomingMessage{Command: command.ArchiveCTF{}}))
	require.True(t, cmd.Match(&IncomingMessage{Command: command.Help{}}))

	a := cmd.Answer(context.Background(), &IncomingMessage{Command: command.Help{}})
	require.NotNil(t, a)

	assert.Equal(t, "**Bot Commands:**\n```markdown\n"+
		">ctf archive\n   Move the current channel to the archive\n\n"+
		">bot help\n   Show this help message. Use `bot help writeup` for the writeup format\n\n"+
		"I also listen for:\n\nflag{...}\n   React to captured flags\n\n"+
		"And do those things periodically:\n\n[archiver] Every 30 seconds (UTC)\n   Sends a heartbeat every 30 seconds\n\n"+
		"```\n`ctfbot` (engine `v1.0.0`)", a.Text)
}
