package chat

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// driverWithTelemetry implements the Driver interface with all methods wrapped with
// call count, error count and latency metrics
type driverWithTelemetry struct {
	base    Driver
	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewDriverWithTelemetry returns an instance of the Driver decorated with prometheus timing and count metrics
func NewDriverWithTelemetry(base Driver, name string, reg prometheus.Registerer) (d Driver, err error) {
	dt := new(driverWithTelemetry)
	dt.base = base

	labels := prometheus.Labels{"name": name}
	dt.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "chat",
		Name:        "calls_total",
		Help:        "Number of chat platform calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	dt.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ctfbot",
		Subsystem:   "chat",
		Name:        "errors_total",
		Help:        "Number of failed chat platform calls by method",
		ConstLabels: labels,
	}, []string{"method"})
	dt.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "ctfbot",
		Subsystem:   "chat",
		Name:        "call_duration_seconds",
		Help:        "Latency of chat platform calls by method",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"method"})

	for _, c := range []prometheus.Collector{dt.calls, dt.errors, dt.latency} {
		if err = reg.Register(c); err != nil {
			return nil, err
		}
	}

	return dt, nil
}

func (d *driverWithTelemetry) record(method string, start time.Time, err *error) {
	d.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	d.calls.WithLabelValues(method).Inc()
	if *err != nil {
		d.errors.WithLabelValues(method).Inc()
	}
}

// Channels implements ChannelManager
func (d *driverWithTelemetry) Channels(ctx context.Context) (channels []Channel, err error) {
	defer d.record("Channels", time.Now(), &err)
	return d.base.Channels(ctx)
}

// Channel implements ChannelManager
func (d *driverWithTelemetry) Channel(ctx context.Context, channelID string) (ch Channel, err error) {
	defer d.record("Channel", time.Now(), &err)
	return d.base.Channel(ctx, channelID)
}

// CreateCategory implements ChannelManager
func (d *driverWithTelemetry) CreateCategory(ctx context.Context, name string) (category Channel, err error) {
	defer d.record("CreateCategory", time.Now(), &err)
	return d.base.CreateCategory(ctx, name)
}

// CreateRestrictedChannel implements ChannelManager
func (d *driverWithTelemetry) CreateRestrictedChannel(ctx context.Context, spec ChannelSpec) (ch Channel, err error) {
	defer d.record("CreateRestrictedChannel", time.Now(), &err)
	return d.base.CreateRestrictedChannel(ctx, spec)
}

// MoveChannel implements ChannelManager
func (d *driverWithTelemetry) MoveChannel(ctx context.Context, channelID string, parentID string) (err error) {
	defer d.record("MoveChannel", time.Now(), &err)
	return d.base.MoveChannel(ctx, channelID, parentID)
}

// Roles implements RoleManager
func (d *driverWithTelemetry) Roles(ctx context.Context) (roles []Role, err error) {
	defer d.record("Roles", time.Now(), &err)
	return d.base.Roles(ctx)
}

// CreateRole implements RoleManager
func (d *driverWithTelemetry) CreateRole(ctx context.Context, spec RoleSpec) (role Role, err error) {
	defer d.record("CreateRole", time.Now(), &err)
	return d.base.CreateRole(ctx, spec)
}

// GrantRole implements RoleManager
func (d *driverWithTelemetry) GrantRole(ctx context.Context, userID string, roleID string) (err error) {
	defer d.record("GrantRole", time.Now(), &err)
	return d.base.GrantRole(ctx, userID, roleID)
}

// CreateScheduledEvent implements EventScheduler
func (d *driverWithTelemetry) CreateScheduledEvent(ctx context.Context, spec ScheduledEventSpec) (err error) {
	defer d.record("CreateScheduledEvent", time.Now(), &err)
	return d.base.CreateScheduledEvent(ctx, spec)
}

// Send implements Messenger
func (d *driverWithTelemetry) Send(ctx context.Context, channelID string, text string) (msg Message, err error) {
	defer d.record("Send", time.Now(), &err)
	return d.base.Send(ctx, channelID, text)
}

// SendEmbed implements Messenger
func (d *driverWithTelemetry) SendEmbed(ctx context.Context, channelID string, embed Embed) (msg Message, err error) {
	defer d.record("SendEmbed", time.Now(), &err)
	return d.base.SendEmbed(ctx, channelID, embed)
}

// SendDirect implements Messenger
func (d *driverWithTelemetry) SendDirect(ctx context.Context, userID string, text string) (err error) {
	defer d.record("SendDirect", time.Now(), &err)
	return d.base.SendDirect(ctx, userID, text)
}

// AddReaction implements Messenger
func (d *driverWithTelemetry) AddReaction(ctx context.Context, channelID string, messageID string, emoji string) (err error) {
	defer d.record("AddReaction", time.Now(), &err)
	return d.base.AddReaction(ctx, channelID, messageID, emoji)
}

// Message implements Messenger
func (d *driverWithTelemetry) Message(ctx context.Context, channelID string, messageID string) (msg Message, err error) {
	defer d.record("Message", time.Now(), &err)
	return d.base.Message(ctx, channelID, messageID)
}

// History implements Messenger
func (d *driverWithTelemetry) History(ctx context.Context, channelID string, limit int) (msgs []Message, err error) {
	defer d.record("History", time.Now(), &err)
	return d.base.History(ctx, channelID, limit)
}

// Member implements MemberFinder
func (d *driverWithTelemetry) Member(ctx context.Context, userID string) (m Member, err error) {
	defer d.record("Member", time.Now(), &err)
	return d.base.Member(ctx, userID)
}

// IsAdministrator implements PermissionChecker
func (d *driverWithTelemetry) IsAdministrator(ctx context.Context, userID string, channelID string) (admin bool, err error) {
	defer d.record("IsAdministrator", time.Now(), &err)
	return d.base.IsAdministrator(ctx, userID, channelID)
}
