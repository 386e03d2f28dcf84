// Package plugin provides a fluent API to assemble a ctfbot.Plugin from actions built with package actions
package plugin

import (
	"github.com/weixuan0110/ctfbot"
)

// PluginBuilder holds a plugin to build
type PluginBuilder struct {
	plugin *ctfbot.Plugin
}

// New creates a new PluginBuilder with a plugin with the given name and empty set of actions
func New(name string) (pb *PluginBuilder) {
	pb = new(PluginBuilder)
	pb.plugin = new(ctfbot.Plugin)
	pb.plugin.Name = name
	pb.plugin.Commands = make([]ctfbot.ActionDefinition, 0)
	pb.plugin.HearActions = make([]ctfbot.ActionDefinition, 0)
	pb.plugin.ReactionActions = make([]ctfbot.ReactionActionDefinition, 0)
	pb.plugin.ScheduledActions = make([]ctfbot.ScheduledActionDefinition, 0)

	return pb
}

// WithCommand adds a command to the plugin
func (pb *PluginBuilder) WithCommand(command ctfbot.ActionDefinition) *PluginBuilder {
	pb.plugin.Commands = append(pb.plugin.Commands, command)
	return pb
}

// WithHearAction adds an hear action to the plugin
func (pb *PluginBuilder) WithHearAction(hearAction ctfbot.ActionDefinition) *PluginBuilder {
	pb.plugin.HearActions = append(pb.plugin.HearActions, hearAction)
	return pb
}

// WithReactionAction adds a reaction action to the plugin
func (pb *PluginBuilder) WithReactionAction(reactionAction ctfbot.ReactionActionDefinition) *PluginBuilder {
	pb.plugin.ReactionActions = append(pb.plugin.ReactionActions, reactionAction)
	return pb
}

// WithScheduledAction adds a scheduled action to the plugin
func (pb *PluginBuilder) WithScheduledAction(scheduledAction ctfbot.ScheduledActionDefinition) *PluginBuilder {
	pb.plugin.ScheduledActions = append(pb.plugin.ScheduledActions, scheduledAction)
	return pb
}

// OnReady sets the function run once the gateway session is first ready
func (pb *PluginBuilder) OnReady(action ctfbot.ReadyAction) *PluginBuilder {
	pb.plugin.OnReady = action
	return pb
}

// Build returns the created Plugin instance
func (pb *PluginBuilder) Build() (p *ctfbot.Plugin) {
	return pb.plugin
}
