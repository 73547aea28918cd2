package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	analysis "terralens/internal/analysis/domain"
)

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	notifier, err := NewNotifier(channel, nil, nil, WithClock(clock), WithRecipient("ops@example.com"))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	err = notifier.NotifyAnomaly(context.Background(),
		analysis.SatelliteImageInput{SiteDescription: "Copper Ridge open pit"},
		analysis.SatelliteAnalysis{AnomalyDetected: true, AnomalyDescription: "Discoloured runoff east of the tailings dam"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		checks := []string{
			"Site: Copper Ridge open pit",
			"Detected At: 2026-03-02T09:30:00Z",
			"Finding: Discoloured runoff east of the tailings dam",
			"Contact: ops@example.com",
		}
		for _, expected := range checks {
			if !strings.Contains(payload.Text.Content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	r.mu.Lock()
	r.contents = append(r.contents, content)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type staticSettings bool

func (s staticSettings) NotificationsEnabled(context.Context) bool { return bool(s) }
func (s staticSettings) NotificationEmail(context.Context) string  { return "" }

type mutableSettings struct {
	mu    sync.Mutex
	email string
}

func (m *mutableSettings) NotificationsEnabled(context.Context) bool { return true }

func (m *mutableSettings) NotificationEmail(context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.email
}

func (m *mutableSettings) setEmail(email string) {
	m.mu.Lock()
	m.email = email
	m.mu.Unlock()
}

type slowChannel struct {
	recordingChannel
	delay time.Duration
}

func (s *slowChannel) Send(ctx context.Context, content string) error {
	time.Sleep(s.delay)
	return s.recordingChannel.Send(ctx, content)
}

type flakyChannel struct {
	recordingChannel
	failures int
	attempts int
}

func (f *flakyChannel) Send(ctx context.Context, content string) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("webhook unavailable")
	}
	return f.recordingChannel.Send(ctx, content)
}

var anomaly = analysis.SatelliteAnalysis{AnomalyDetected: true, AnomalyDescription: "Clearing beyond lease boundary"}

func TestNotifierCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, nil, WithClock(clock), WithCooldown(10*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	site := analysis.SatelliteImageInput{SiteDescription: "North Quarry"}
	other := analysis.SatelliteImageInput{SiteDescription: "South Quarry"}

	for i := 0; i < 3; i++ {
		if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if channel.Count() != 1 {
		t.Fatalf("expected 1 notification within cooldown, got %d", channel.Count())
	}

	if err := notifier.NotifyAnomaly(context.Background(), other, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.Count() != 2 {
		t.Fatalf("expected a separate site to notify, got %d", channel.Count())
	}

	clock.Add(11 * time.Minute)
	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.Count() != 3 {
		t.Fatalf("expected notification after cooldown, got %d", channel.Count())
	}
}

func TestNotifierRespectsSettings(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, nil, WithSettings(staticSettings(false)))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.NotifyAnomaly(context.Background(), analysis.SatelliteImageInput{}, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.Count() != 0 {
		t.Fatalf("expected no notification when disabled, got %d", channel.Count())
	}
}

func TestNotifierIgnoresCleanResults(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.NotifyAnomaly(context.Background(), analysis.SatelliteImageInput{}, analysis.SatelliteAnalysis{}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.Count() != 0 {
		t.Fatalf("expected no notification, got %d", channel.Count())
	}
}

func TestNewNotifierRequiresChannel(t *testing.T) {
	if _, err := NewNotifier(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil channel")
	}
}

func TestNotifierReadsRecipientOnEachSend(t *testing.T) {
	settings := &mutableSettings{email: "first@example.com"}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, nil, WithSettings(settings), WithRecipient("fallback@example.com"))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	site := analysis.SatelliteImageInput{SiteDescription: "North Quarry"}

	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	settings.setEmail("second@example.com")
	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	settings.setEmail("")
	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}

	expected := []string{"Contact: first@example.com", "Contact: second@example.com", "Contact: fallback@example.com"}
	if channel.Count() != len(expected) {
		t.Fatalf("expected %d notifications, got %d", len(expected), channel.Count())
	}
	for i, want := range expected {
		if !strings.Contains(channel.contents[i], want) {
			t.Fatalf("message %d: expected %q, got %s", i, want, channel.contents[i])
		}
	}
}

func TestNotifierCooldownUnderConcurrentSends(t *testing.T) {
	channel := &slowChannel{delay: 20 * time.Millisecond}
	notifier, err := NewNotifier(channel, nil, nil, WithCooldown(time.Hour))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	site := analysis.SatelliteImageInput{SiteDescription: "North Quarry"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
				t.Errorf("notify: %v", err)
			}
		}()
	}
	wg.Wait()
	if channel.Count() != 1 {
		t.Fatalf("expected a single notification, got %d", channel.Count())
	}
}

func TestNotifierFailedSendKeepsSlotOpen(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)}
	channel := &flakyChannel{failures: 1}
	notifier, err := NewNotifier(channel, nil, nil, WithClock(clock), WithCooldown(10*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	site := analysis.SatelliteImageInput{SiteDescription: "North Quarry"}

	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err == nil {
		t.Fatal("expected send error")
	}
	clock.Add(time.Minute)
	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify after failure: %v", err)
	}
	if channel.Count() != 1 {
		t.Fatalf("expected retry to deliver, got %d", channel.Count())
	}
	if err := notifier.NotifyAnomaly(context.Background(), site, anomaly); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.Count() != 1 {
		t.Fatalf("expected cooldown after delivery, got %d", channel.Count())
	}
}
