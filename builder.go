package ctfbot

import (
	"io"

	"github.com/spf13/viper"
	"github.com/weixuan0110/ctfbot/chat"
)

// Builder holds a bot instance to build
type Builder struct {
	bot *Bot
	err error
}

// NewBot returns a new Builder used to set up a new bot
func NewBot(name string, v *viper.Viper, gateway Gateway, driver chat.Driver, options ...Option) (sb *Builder) {
	sb = new(Builder)
	sb.bot, sb.err = New(name, v, gateway, driver, options...)

	return sb
}

// WithPlugin adds a plugin to the bot instance
func (sb *Builder) WithPlugin(p *Plugin) *Builder {
	if sb.err != nil {
		return sb
	}

	sb.bot.RegisterPlugin(p)

	return sb
}

// WithCloser adds a closer to close along with the bot. This is how the stores backing plugins are
// released
func (sb *Builder) WithCloser(closer io.Closer) *Builder {
	if sb.err != nil || closer == nil {
		return sb
	}

	sb.bot.closers = append(sb.bot.closers, closer)

	return sb
}

// Build returns the built bot instance. If there was an error during
// setup, the error is returned along with a nil bot
func (sb *Builder) Build() (b *Bot, err error) {
	if sb.err != nil {
		return nil, sb.err
	}

	return sb.bot, nil
}
