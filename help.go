package ctfbot

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/config"
	"github.com/weixuan0110/ctfbot/writeup"
)

type helpPlugin struct {
	Plugin

	name                   string
	version                string
	timeLocation           string
	prefix                 string
	commands               []ActionDefinition
	hearActions            []ActionDefinition
	pluginScheduledActions []pluginScheduledAction
}

const (
	helpPluginName = "help"
)

// pluginScheduledAction represents a plugin's scheduled action with the plugin name and the action's definition
type pluginScheduledAction struct {
	plugin string
	ScheduledActionDefinition
}

func (b *Bot) newHelpPlugin(version string) *helpPlugin {
	commands, hearActions, scheduledActions := findAllActions(b.plugins)

	h := new(helpPlugin)
	h.name = b.name
	h.version = version
	h.timeLocation = b.config.GetString(config.TimeLocationKey)
	h.prefix = b.prefix
	h.commands = commands
	h.hearActions = hearActions
	h.pluginScheduledActions = scheduledActions

	h.Plugin = Plugin{Name: helpPluginName, Commands: []ActionDefinition{{
		Match: func(m *IncomingMessage) bool {
			_, ok := m.Command.(command.Help)
			return ok
		},
		Usage:       "bot help",
		Description: "Show this help message. Use `bot help writeup` for the writeup format",
		Answer:      h.showHelp,
	}}}
	h.commands = append(h.commands, h.Plugin.Commands...)

	return h
}

// showHelp generates a message listing all of the commands, hear actions and scheduled actions.
// Note that ActionDefinitions with the flag Hidden set to true won't be included in the list
func (h *helpPlugin) showHelp(ctx context.Context, m *IncomingMessage) *Answer {
	if c, ok := m.Command.(command.Help); ok && c.Topic == command.WriteupTopic {
		return &Answer{Text: writeup.FormatHelp()}
	}

	var b strings.Builder

	fmt.Fprintf(&b, "**Bot Commands:**\n```markdown\n")
	appendActions(&b, h.prefix, h.commands)

	if len(h.hearActions) > 0 {
		fmt.Fprintf(&b, "I also listen for:\n\n")
		appendActions(&b, "", h.hearActions)
	}

	if len(h.pluginScheduledActions) > 0 {
		fmt.Fprintf(&b, "And do those things periodically:\n\n")
		appendScheduledActions(&b, h.timeLocation, h.pluginScheduledActions)
	}

	if hasDirectOnly(h.commands) {
		fmt.Fprintf(&b, "* = Only works in DM, DM the bot\n")
	}

	fmt.Fprintf(&b, "```\n`%s` (engine `v%s`)", h.name, h.version)

	return &Answer{Text: b.String()}
}

func appendActions(w io.Writer, prefix string, actions []ActionDefinition) {
	for _, value := range actions {
		if value.Usage == "" || value.Hidden {
			continue
		}

		marker := ""
		if value.DirectOnly {
			marker = " *"
		}

		fmt.Fprintf(w, "%s%s%s\n   %s\n\n", prefix, value.Usage, marker, value.Description)
	}
}

func appendScheduledActions(w io.Writer, timeLocationName string, scheduledActions []pluginScheduledAction) {
	for _, value := range scheduledActions {
		fmt.Fprintf(w, "[%s] %s (%s)\n   %s\n\n", value.plugin, value.Schedule, timeLocationName, value.Description)
	}
}

func hasDirectOnly(actions []ActionDefinition) bool {
	for _, a := range actions {
		if a.DirectOnly {
			return true
		}
	}

	return false
}

func findAllActions(plugins []*Plugin) (commands []ActionDefinition, hearActions []ActionDefinition, pluginScheduledActions []pluginScheduledAction) {
	commands = make([]ActionDefinition, 0)
	hearActions = make([]ActionDefinition, 0)
	pluginScheduledActions = make([]pluginScheduledAction, 0)

	for _, p := range plugins {
		commands = append(commands, filterNonHiddenActions(p.Commands)...)
		hearActions = append(hearActions, filterNonHiddenActions(p.HearActions)...)
		pluginScheduledActions = append(pluginScheduledActions, filterNonHiddenScheduledActions(p.Name, p.ScheduledActions)...)
	}

	return commands, hearActions, pluginScheduledActions
}

func filterNonHiddenActions(actions []ActionDefinition) (visibleActions []ActionDefinition) {
	visibleActions = make([]ActionDefinition, 0)
	for _, a := range actions {
		if !a.Hidden {
			visibleActions = append(visibleActions, a)
		}
	}

	return visibleActions
}

func filterNonHiddenScheduledActions(pluginName string, actions []ScheduledActionDefinition) (visibleActions []pluginScheduledAction) {
	visibleActions = make([]pluginScheduledAction, 0)

	for _, sa := range actions {
		if !sa.Hidden {
			visibleActions = append(visibleActions, pluginScheduledAction{plugin: pluginName, ScheduledActionDefinition: sa})
		}
	}

	return visibleActions
}
