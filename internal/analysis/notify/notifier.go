package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	analysis "terralens/internal/analysis/domain"
	"terralens/internal/observability/metrics"
)

// SettingsReader reports the admin notification preferences. Both are read on
// every send so saved settings apply without a restart.
type SettingsReader interface {
	NotificationsEnabled(ctx context.Context) bool
	NotificationEmail(ctx context.Context) string
}

// Clock provides time for cooldown tracking.
type Clock interface {
	Now() time.Time
}

// Notifier sends anomaly findings through a channel, at most once per site
// within the cooldown.
type Notifier struct {
	channel   Channel
	template  *Template
	settings  SettingsReader
	recipient string
	clock     Clock
	cooldown  time.Duration
	logger    *zap.Logger

	mu   sync.Mutex
	sent map[string]time.Time
}

// Option configures the notifier.
type Option func(*Notifier)

// WithSettings gates notifications on the admin settings.
func WithSettings(reader SettingsReader) Option {
	return func(n *Notifier) {
		n.settings = reader
	}
}

// WithCooldown sets a minimum interval between notifications for the same site.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRecipient names the contact used when settings provide none.
func WithRecipient(recipient string) Option {
	return func(n *Notifier) {
		n.recipient = recipient
	}
}

// NewNotifier constructs an anomaly notifier.
func NewNotifier(channel Channel, template *Template, logger *zap.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("anomaly notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   logger.Named("notify"),
		sent:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyAnomaly sends one message for a detected anomaly. Disabled settings and
// an active cooldown skip the send without error.
func (n *Notifier) NotifyAnomaly(ctx context.Context, input analysis.SatelliteImageInput, result analysis.SatelliteAnalysis) error {
	if !result.AnomalyDetected {
		return nil
	}
	if n.settings != nil && !n.settings.NotificationsEnabled(ctx) {
		metrics.IncNotification(metrics.ResultSkipped)
		return nil
	}
	key := siteKey(input.SiteDescription)
	now := n.clock.Now().UTC()
	release, ok := n.reserve(key, now)
	if !ok {
		metrics.IncNotification(metrics.ResultSkipped)
		n.logger.Debug("anomaly notification in cooldown", zap.String("site", key))
		return nil
	}

	site := strings.TrimSpace(input.SiteDescription)
	if site == "" {
		site = "unspecified site"
	}
	content, err := n.template.Render(TemplateData{
		Site:        site,
		Description: result.AnomalyDescription,
		DetectedAt:  now.Format(time.RFC3339),
		Recipient:   n.currentRecipient(ctx),
	})
	if err != nil {
		release()
		metrics.IncNotification(metrics.ResultError)
		return err
	}
	if err := n.channel.Send(ctx, content); err != nil {
		release()
		metrics.IncNotification(metrics.ResultError)
		return err
	}
	metrics.IncNotification(metrics.ResultSuccess)
	return nil
}

func (n *Notifier) currentRecipient(ctx context.Context) string {
	if n.settings != nil {
		if email := strings.TrimSpace(n.settings.NotificationEmail(ctx)); email != "" {
			return email
		}
	}
	return n.recipient
}

// reserve claims the cooldown slot for key. The returned release restores the
// previous slot when the send does not go through.
func (n *Notifier) reserve(key string, now time.Time) (func(), bool) {
	if n.cooldown <= 0 {
		return func() {}, true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	prev, had := n.sent[key]
	if had && now.Sub(prev) < n.cooldown {
		return nil, false
	}
	n.sent[key] = now
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if !n.sent[key].Equal(now) {
			return
		}
		if had {
			n.sent[key] = prev
		} else {
			delete(n.sent, key)
		}
	}, true
}

func siteKey(description string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(description))))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
