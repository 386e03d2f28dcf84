// Package tracker keeps the yearly category layout of the server in sync with the calendar. Event
// channels live under a "ctf-<year>" category and move to "archive-<year>" once archived
package tracker

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/slog"
	"golang.org/x/sync/singleflight"
)

var yearCategoryPattern = regexp.MustCompile(`^(ctf|archive)-\d{4}$`)

// Tracker finds and creates the yearly categories and advances the Epoch when the year changes
type Tracker struct {
	epoch    *Epoch
	channels chat.ChannelManager
	logger   slog.Logger
	now      func() time.Time
	location *time.Location
	group    singleflight.Group
}

// Option defines an option for a Tracker
type Option func(t *Tracker)

// OptionNow sets the clock used to determine the current year. Defaults to time.Now
func OptionNow(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// OptionLocation sets the time location in which the year is evaluated. Defaults to UTC
func OptionLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		t.location = loc
	}
}

// New returns a new Tracker updating epoch and managing categories through channels
func New(epoch *Epoch, channels chat.ChannelManager, logger slog.Logger, options ...Option) (t *Tracker) {
	t = new(Tracker)
	t.epoch = epoch
	t.channels = channels
	t.logger = logger
	t.now = time.Now
	t.location = time.UTC

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Epoch returns the tracked epoch
func (t *Tracker) Epoch() *Epoch {
	return t.epoch
}

// FindCategory looks up a category by name. The boolean is false when it doesn't exist
func (t *Tracker) FindCategory(ctx context.Context, name string) (category chat.Channel, found bool, err error) {
	channels, err := t.channels.Channels(ctx)
	if err != nil {
		return category, false, err
	}

	category, found = chat.FindByName(channels, name, true)
	return category, found, nil
}

// EnsureCategory returns the category with the given name, creating it if it doesn't exist. Concurrent
// calls for the same name share a single lookup and creation
func (t *Tracker) EnsureCategory(ctx context.Context, name string) (category chat.Channel, err error) {
	v, err, _ := t.group.Do(name, func() (interface{}, error) {
		c, found, err := t.FindCategory(ctx, name)
		if err != nil {
			return nil, err
		}

		if found {
			return c, nil
		}

		t.logger.Printf("Category [%s] not found, creating it", name)
		c, err = t.channels.CreateCategory(ctx, name)
		if err != nil {
			return nil, err
		}

		return c, nil
	})
	if err != nil {
		return category, errors.Wrapf(err, "failed to ensure category [%s]", name)
	}

	return v.(chat.Channel), nil
}

// FindChannel looks up a text channel by name among the children of the named categories
func (t *Tracker) FindChannel(ctx context.Context, name string, categoryNames ...string) (ch chat.Channel, found bool, err error) {
	channels, err := t.channels.Channels(ctx)
	if err != nil {
		return ch, false, err
	}

	parents := make(map[string]bool)
	for _, categoryName := range categoryNames {
		if c, ok := chat.FindByName(channels, categoryName, true); ok {
			parents[c.ID] = true
		}
	}

	for _, c := range channels {
		if !c.Category && c.Name == name && parents[c.ParentID] {
			return c, true, nil
		}
	}

	return ch, false, nil
}

// CategoryName returns the name of the category of a channel or an empty string if the channel
// isn't in a category
func (t *Tracker) CategoryName(ctx context.Context, channelID string) (name string, err error) {
	ch, err := t.channels.Channel(ctx, channelID)
	if err != nil {
		return "", err
	}

	if ch.ParentID == "" {
		return "", nil
	}

	parent, err := t.channels.Channel(ctx, ch.ParentID)
	if err != nil {
		return "", err
	}

	return parent.Name, nil
}

// Bootstrap ensures both categories of the current year exist
func (t *Tracker) Bootstrap(ctx context.Context) (err error) {
	return t.ensureYear(ctx, t.epoch.Year())
}

// Reconcile advances the epoch if the calendar year changed and ensures the new year's categories exist.
// Nothing is called on the chat platform when the year is unchanged. The epoch is only advanced once
// both categories exist so that a failed run is retried by the next one
func (t *Tracker) Reconcile(ctx context.Context) (changed bool, err error) {
	year := t.now().In(t.location).Year()
	if year == t.epoch.Year() {
		t.logger.Debugf("Year still [%d], nothing to reconcile", year)
		return false, nil
	}

	t.logger.Printf("Year changed from [%d] to [%d], ensuring categories", t.epoch.Year(), year)
	if err = t.ensureYear(ctx, year); err != nil {
		return false, err
	}

	return t.epoch.set(year), nil
}

func (t *Tracker) ensureYear(ctx context.Context, year int) (err error) {
	for _, name := range []string{ActiveCategoryName(year), ArchiveCategoryName(year)} {
		if _, err = t.EnsureCategory(ctx, name); err != nil {
			return err
		}
	}

	return nil
}

// IsYearCategory returns true if name is a "ctf-YYYY" or "archive-YYYY" category name
func IsYearCategory(name string) bool {
	return yearCategoryPattern.MatchString(name)
}
