package ctfbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/marcsantiago/gocron"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/config"
	"github.com/weixuan0110/ctfbot/schedule"
)

const (
	// VERSION represents the current ctfbot version
	VERSION = "1.0.0"

	// panicAnswer is sent back when an action panics while handling a message
	panicAnswer = "An unexpected error occurred while processing your command."
)

// ErrNotConnected is returned by Healthy until the bot is logged in
var ErrNotConnected = errors.New("not connected to the gateway")

// Gateway is the realtime connection delivering events to the bot. *discordgo.Session implements it
type Gateway interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// Bot represents a Discord bot (mostly, a name and its plugins)
type Bot struct {
	name    string
	config  *viper.Viper
	prefix  string
	gateway Gateway
	driver  chat.Driver
	plugins []*Plugin

	// Internal state as an optimization when looping through all actions
	commandsWithID        []ActionDefinitionWithID
	hearActionsWithID     []ActionDefinitionWithID
	reactionActionsWithID []ReactionActionDefinitionWithID

	selfID atomic.Value

	router     *partitionRouter
	timeLoc    *time.Location
	ready      sync.Once
	schedMu    sync.Mutex
	stopSched  chan bool
	terminate  chan struct{}
	stopOnce   sync.Once
	closers    []io.Closer
	unregister []func()

	registerer prometheus.Registerer
	handleSigs bool
	logger     SLogger
	stdLogger  *log.Logger
	*instrumenter
}

// Plugin represents a plugin (its name, action definitions and the logger injected by the engine)
type Plugin struct {
	Name             string
	Commands         []ActionDefinition
	HearActions      []ActionDefinition
	ReactionActions  []ReactionActionDefinition
	ScheduledActions []ScheduledActionDefinition

	// OnReady runs once, on the first Ready event of the gateway, before scheduled actions start
	OnReady ReadyAction

	// Logger is injected by the engine on registration
	Logger SLogger
}

// ActionDefinition represents how an action is triggered, published, used and described
// along with defining the function defining its behavior
type ActionDefinition struct {
	// Indicates whether the action should be omitted from the help message
	Hidden bool

	// Indicates that the action only triggers on direct messages
	DirectOnly bool

	// Matcher that will determine whether or not the action should be triggered
	Match Matcher

	// Usage example
	Usage string

	// Help description for the action
	Description string

	// Function to execute if the Matcher matches
	Answer Answerer
}

// String returns a friendly description of an ActionDefinition
func (a ActionDefinition) String() string {
	return fmt.Sprintf("`%s` - %s", a.Usage, a.Description)
}

// IncomingMessage holds a message received by the bot along with its parsed command
type IncomingMessage struct {
	chat.Message

	// Command is the parsed command or nil for messages routed to hear actions
	Command command.Command

	// Direct is true for private messages
	Direct bool
}

// Matcher is the function that determines whether or not an action should be triggered. Note that a match doesn't guarantee that the action should
// actually respond with anything once invoked
type Matcher func(m *IncomingMessage) bool

// Answerer is what gets executed when an ActionDefinition is triggered. A nil Answer means no response
type Answerer func(ctx context.Context, m *IncomingMessage) *Answer

// IncomingReaction holds a reaction added to a message
type IncomingReaction struct {
	chat.Reaction

	// SelfID is the bot's own user id, used to recognize reactions on the bot's messages
	SelfID string
}

// ReactionAction is what gets executed when a matching reaction is added
type ReactionAction func(ctx context.Context, r *IncomingReaction)

// ReactionActionDefinition represents an action triggered by an emoji reaction
type ReactionActionDefinition struct {
	Hidden bool

	// Emoji triggering the action. Empty matches any emoji
	Emoji string

	Description string
	Action      ReactionAction
}

// ScheduledActionDefinition represents when a scheduled action is triggered as well
// as what it does and how
type ScheduledActionDefinition struct {
	// Indicates whether the action should be omitted from the help message
	Hidden bool

	// Schedule definition determining when the action runs
	Schedule schedule.Definition

	// Help description for the scheduled action
	Description string

	// ScheduledAction is the function that is invoked when the schedule activates
	Action ScheduledAction
}

// String returns a friendly description of a ScheduledActionDefinition
func (a ScheduledActionDefinition) String() string {
	return fmt.Sprintf("`%s` - %s", a.Schedule, a.Description)
}

// ScheduledAction is what gets executed when a ScheduledActionDefinition is triggered (by its Schedule)
type ScheduledAction func(ctx context.Context)

// ReadyAction is what gets executed once the gateway is ready
type ReadyAction func(ctx context.Context) error

// ActionDefinitionWithID holds an action definition along with its identifier string
type ActionDefinitionWithID struct {
	ActionDefinition
	plugin string
	id     string
}

// ReactionActionDefinitionWithID holds a reaction action definition along with its identifier string
type ReactionActionDefinitionWithID struct {
	ReactionActionDefinition
	plugin string
	id     string
}

// Option defines an option for a Bot
type Option func(b *Bot)

// OptionLog sets a logger for the bot
func OptionLog(logger *log.Logger) Option {
	return func(b *Bot) {
		b.stdLogger = logger
	}
}

// OptionRegisterer sets the prometheus registerer receiving the engine metrics. Defaults to
// prometheus.DefaultRegisterer
func OptionRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bot) {
		b.registerer = reg
	}
}

// OptionNoSignalHandling disables stopping on SIGINT and SIGTERM. Run then only returns after Stop
func OptionNoSignalHandling() Option {
	return func(b *Bot) {
		b.handleSigs = false
	}
}

// New creates a new bot named name, receiving events from gateway and acting through driver
func New(name string, v *viper.Viper, gateway Gateway, driver chat.Driver, options ...Option) (b *Bot, err error) {
	b = new(Bot)
	b.name = name
	b.config = config.LayerConfigWithDefaults(v)
	b.prefix = b.config.GetString(config.CommandPrefixKey)
	b.gateway = gateway
	b.driver = driver
	b.plugins = make([]*Plugin, 0)
	b.closers = make([]io.Closer, 0)
	b.terminate = make(chan struct{})
	b.handleSigs = true
	b.registerer = prometheus.DefaultRegisterer
	b.stdLogger = log.New(os.Stdout, name+": ", log.Lshortfile|log.LstdFlags)
	b.selfID.Store("")

	for _, opt := range options {
		opt(b)
	}

	b.logger = NewSLogger(b.stdLogger, b.config.GetBool(config.DebugKey))

	if b.timeLoc, err = config.GetTimeLocation(b.config); err != nil {
		return nil, err
	}

	if b.instrumenter, err = newInstrumenter(name, b.registerer); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to register engine metrics")
	}

	if b.router, err = newPartitionRouter(b.config.GetInt(config.PartitionCountKey), b.config.GetInt(config.PartitionBufferKey), b.logger, b.instrumenter); err != nil {
		return nil, err
	}

	return b, nil
}

// RegisterPlugin registers a plugin with the engine and injects its logger. This should be invoked
// prior to calling Run
func (b *Bot) RegisterPlugin(p *Plugin) {
	p.Logger = b.logger
	b.plugins = append(b.plugins, p)
}

// Run connects to the gateway and processes events until the process is interrupted or Stop is called
func (b *Bot) Run() (err error) {
	helpPlugin := b.newHelpPlugin(VERSION)
	b.RegisterPlugin(&helpPlugin.Plugin)
	b.attachIdentifiersToPluginActions()

	b.router.start(b.processMessage)

	b.unregister = append(b.unregister,
		b.gateway.AddHandler(b.onReady),
		b.gateway.AddHandler(b.onMessageCreate),
		b.gateway.AddHandler(b.onReactionAdd))

	if err = b.gateway.Open(); err != nil {
		b.router.stop()
		return pkgerrors.Wrap(err, "failed to open gateway connection")
	}

	if b.handleSigs {
		go b.watchForTerminationSignalToAbort()
	}

	<-b.terminate

	return b.shutdown()
}

// Stop ends a running bot. It is safe to call more than once
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.terminate)
	})
}

// Close closes all closers of this bot
func (b *Bot) Close() (err error) {
	for _, c := range b.closers {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}

	return err
}

func (b *Bot) shutdown() (err error) {
	for _, unregister := range b.unregister {
		unregister()
	}

	b.schedMu.Lock()
	if b.stopSched != nil {
		b.stopSched <- true
		b.stopSched = nil
	}
	b.schedMu.Unlock()

	err = b.gateway.Close()
	b.router.stop()

	b.logger.Printf("[%s] stopped", b.name)

	return err
}

// watchForTerminationSignalToAbort waits for a SIGTERM or SIGINT and stops the bot. This is blocking
// and meant to run in a go routine
func (b *Bot) watchForTerminationSignalToAbort() {
	tSignals := make(chan os.Signal, 1)
	signal.Notify(tSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(tSignals)

	select {
	case sig := <-tSignals:
		b.logger.Printf("Received termination signal [%s], stopping", sig)
		b.Stop()
	case <-b.terminate:
	}
}

// attachIdentifiersToPluginActions attaches an action identifier to every plugin action.
// The identifiers are generated the following way:
//   - pluginName.c[index] for commands
//   - pluginName.h[index] for hear actions
//   - pluginName.r[index] for reaction actions
func (b *Bot) attachIdentifiersToPluginActions() {
	b.commandsWithID = make([]ActionDefinitionWithID, 0)
	b.hearActionsWithID = make([]ActionDefinitionWithID, 0)
	b.reactionActionsWithID = make([]ReactionActionDefinitionWithID, 0)

	for _, p := range b.plugins {
		for i, c := range p.Commands {
			b.commandsWithID = append(b.commandsWithID, ActionDefinitionWithID{ActionDefinition: c, plugin: p.Name, id: fmt.Sprintf("%s.c[%d]", p.Name, i)})
		}

		for i, h := range p.HearActions {
			b.hearActionsWithID = append(b.hearActionsWithID, ActionDefinitionWithID{ActionDefinition: h, plugin: p.Name, id: fmt.Sprintf("%s.h[%d]", p.Name, i)})
		}

		for i, r := range p.ReactionActions {
			b.reactionActionsWithID = append(b.reactionActionsWithID, ReactionActionDefinitionWithID{ReactionActionDefinition: r, plugin: p.Name, id: fmt.Sprintf("%s.r[%d]", p.Name, i)})
		}
	}
}

func (b *Bot) self() string {
	return b.selfID.Load().(string)
}

// Healthy returns an error until the gateway has delivered its first Ready event
func (b *Bot) Healthy() error {
	if b.self() == "" {
		return ErrNotConnected
	}

	return nil
}

// onReady caches our identity and, on the first Ready only, runs the plugins' OnReady actions and
// starts the scheduler. Ready is sent again on every reconnection
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		b.selfID.Store(r.User.ID)
		b.logger.Printf("Logged in as [%s] with id [%s]", r.User.Username, r.User.ID)
	}

	b.ready.Do(func() {
		ctx := context.Background()
		for _, p := range b.plugins {
			if p.OnReady == nil {
				continue
			}

			if err := p.OnReady(ctx); err != nil {
				b.logger.Printf("[%s] ready action failed: %v", p.Name, err)
			}
		}

		b.startActionScheduler()
	})
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}

	b.coreMetrics.msgsSeen.Inc()
	b.router.route(chat.ToMessage(m.Message))
}

func (b *Bot) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}

	b.coreMetrics.reactionsSeen.Inc()
	reaction := chat.Reaction{ChannelID: r.ChannelID, MessageID: r.MessageID, GuildID: r.GuildID, UserID: r.UserID, Emoji: r.Emoji.Name}
	go b.processReaction(context.Background(), reaction)
}

// startActionScheduler registers all plugins' scheduled actions with a new scheduler and starts it
func (b *Bot) startActionScheduler() {
	gocron.ChangeLoc(b.timeLoc)
	sc := gocron.NewScheduler()

	for _, p := range b.plugins {
		for _, sa := range p.ScheduledActions {
			j, err := schedule.NewJob(sc, sa.Schedule)
			if err != nil {
				b.logger.Printf("[%s] skipping scheduled action [%s]: %v", p.Name, sa.Schedule, err)
				continue
			}

			action := sa.Action
			b.logger.Debugf("Adding job [%s] of plugin [%s] to scheduler", sa.Schedule, p.Name)
			j.Do(func() {
				action(context.Background())
			})
		}
	}

	_, t := sc.NextRun()
	b.logger.Debugf("Starting scheduler with first job scheduled at [%s]", t)

	b.schedMu.Lock()
	b.stopSched = sc.Start()
	b.schedMu.Unlock()
}

// processMessage handles a message routed to a partition. The rules are the following:
//  1. Messages sent by us or other bots are ignored
//  2. Messages with the command prefix are parsed once and dispatched to the commands
//  3. Malformed commands are answered with their usage, unknown ones are ignored
//  4. Other messages go to the hear actions
func (b *Bot) processMessage(m chat.Message) {
	if m.AuthorBot || m.AuthorID == b.self() {
		b.logger.Debugf("Ignoring message [%s] from [%s]", m.ID, m.AuthorID)
		return
	}

	ctx := context.Background()
	defer b.recoverFromPanic(ctx, m)

	in := &IncomingMessage{Message: m, Direct: m.GuildID == ""}
	cmd, err := command.Parse(b.prefix, m.Content)

	var usageErr *command.UsageError
	switch {
	case err == nil:
		in.Command = cmd
		b.dispatch(ctx, commandKind, b.commandsWithID, in)
	case errors.Is(err, command.ErrNotCommand):
		b.dispatch(ctx, hearKind, b.hearActionsWithID, in)
	case errors.As(err, &usageErr):
		b.coreMetrics.msgsProcessed.WithLabelValues(usageKind).Inc()
		b.sendAnswer(ctx, in, &Answer{Text: usageErr.Error()})
	default:
		b.coreMetrics.msgsProcessed.WithLabelValues(ignoredKind).Inc()
		b.logger.Debugf("Ignoring [%s]: %v", m.Content, err)
	}
}

// dispatch invokes every matching action and sends its answer. More than one action can be
// triggered by a single message
func (b *Bot) dispatch(ctx context.Context, kind string, actions []ActionDefinitionWithID, m *IncomingMessage) {
	b.coreMetrics.msgsProcessed.WithLabelValues(kind).Inc()

	for _, action := range actions {
		if action.DirectOnly && !m.Direct {
			continue
		}

		if !action.Match(m) {
			continue
		}

		var answer *Answer
		d := measure(func() {
			answer = action.Answer(ctx, m)
		})
		b.observeAction(action.plugin, d)

		b.logger.Debugf("Action [%s] processed message [%s] in [%s]", action.id, m.ID, d)
		if answer != nil {
			b.sendAnswer(ctx, m, answer)
		}
	}
}

// sendAnswer delivers an answer on the channel of the message unless its options say otherwise
func (b *Bot) sendAnswer(ctx context.Context, m *IncomingMessage, a *Answer) {
	opts := ApplyAnswerOpts(a.Options...)

	text := a.Text
	if text != "" && opts[MentionAuthorOpt] == "true" {
		text = fmt.Sprintf("<@%s> %s", m.AuthorID, text)
	}

	if opts[DirectOpt] == "true" {
		if text != "" {
			if err := b.driver.SendDirect(ctx, m.AuthorID, text); err != nil {
				b.logger.Printf("Unable to send direct answer to [%s]: %v", m.AuthorID, err)
			}
		}
		return
	}

	channelID := m.ChannelID
	if text != "" {
		if _, err := b.driver.Send(ctx, channelID, text); err != nil {
			b.logger.Printf("Unable to send answer to message [%s] on [%s]: %v", m.ID, channelID, err)
		}
	}

	for _, e := range a.Embeds {
		if _, err := b.driver.SendEmbed(ctx, channelID, e); err != nil {
			b.logger.Printf("Unable to send embed [%s] on [%s]: %v", e.Title, channelID, err)
		}
	}
}

func (b *Bot) recoverFromPanic(ctx context.Context, m chat.Message) {
	if r := recover(); r != nil {
		b.coreMetrics.panics.Inc()
		b.logger.Printf("Recovered from panic processing message [%s] [%s]: %v", m.ID, m.Content, r)
		if _, err := b.driver.Send(ctx, m.ChannelID, panicAnswer); err != nil {
			b.logger.Printf("Unable to report failure on [%s]: %v", m.ChannelID, err)
		}
	}
}

// processReaction invokes the reaction actions matching the emoji. Our own reactions are ignored
func (b *Bot) processReaction(ctx context.Context, r chat.Reaction) {
	if r.UserID == b.self() {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			b.coreMetrics.panics.Inc()
			b.logger.Printf("Recovered from panic processing reaction [%s] on [%s]: %v", r.Emoji, r.MessageID, p)
		}
	}()

	in := &IncomingReaction{Reaction: r, SelfID: b.self()}
	for _, action := range b.reactionActionsWithID {
		if action.Emoji != "" && action.Emoji != r.Emoji {
			continue
		}

		d := measure(func() {
			action.Action(ctx, in)
		})
		b.observeReaction(action.plugin, d)
		b.logger.Debugf("Reaction action [%s] processed [%s] on message [%s] in [%s]", action.id, r.Emoji, r.MessageID, d)
	}
}
