package plugins

import (
	"context"

	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/actions"
	"github.com/weixuan0110/ctfbot/plugin"
	"github.com/weixuan0110/ctfbot/schedule"
	"github.com/weixuan0110/ctfbot/tracker"
)

const (
	// YearlyPluginName holds the identifying name of the yearly plugin
	YearlyPluginName = "yearly"
)

// Yearly keeps the categories of the current year in place. Both categories are ensured when the bot
// connects and the year is checked again on the reconcile schedule, daily unless configured otherwise
type Yearly struct {
	*ctfbot.Plugin

	tracker *tracker.Tracker
}

// NewYearly creates a new instance of the yearly plugin
func NewYearly(t *tracker.Tracker, s Settings) (y *Yearly) {
	y = new(Yearly)
	y.tracker = t

	sd := s.ReconcileSchedule
	if sd == (schedule.Definition{}) {
		sd = schedule.Daily()
	}

	y.Plugin = plugin.New(YearlyPluginName).
		WithScheduledAction(actions.NewScheduledAction().
			WithSchedule(sd).
			WithDescription("Roll the CTF and archive categories over when the year changes").
			WithAction(y.reconcile).
			Build()).
		OnReady(y.bootstrap).
		Build()

	return y
}

func (y *Yearly) bootstrap(ctx context.Context) error {
	if err := y.tracker.Bootstrap(ctx); err != nil {
		return err
	}

	y.Logger.Printf("[%s] Categories [%s] and [%s] ready", YearlyPluginName, y.tracker.Epoch().ActiveCategory(), y.tracker.Epoch().ArchiveCategory())
	return nil
}

func (y *Yearly) reconcile(ctx context.Context) {
	changed, err := y.tracker.Reconcile(ctx)
	if err != nil {
		y.Logger.Printf("[%s] Reconciliation failed, retrying on the next run: %v", YearlyPluginName, err)
		return
	}

	if changed {
		y.Logger.Printf("[%s] Year changed to [%d]", YearlyPluginName, y.tracker.Epoch().Year())
	}
}
