package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
)

const testBase = 30 * time.Second

func newTestScheduler(store *stubStore, source *stubSource, sink *stubSink, guard *Guard) (*Scheduler, *time.Time) {
	s := NewScheduler(store, source, sink, guard, Config{BaseInterval: testBase, RetryInterval: time.Minute}, zerolog.Nop())
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestCycleDelayScalesWithGuildCount(t *testing.T) {
	cases := map[int]time.Duration{
		0: testBase,
		1: testBase,
		5: 5 * testBase,
	}
	for count, want := range cases {
		if got := CycleDelay(testBase, count); got != want {
			t.Fatalf("CycleDelay(%d) = %v, want %v", count, got, want)
		}
	}
}

func TestRunCycleDelayUsesGuildCount(t *testing.T) {
	guilds := make([]domain.GuildConfig, 5)
	for i := range guilds {
		guilds[i] = domain.GuildConfig{ID: string(rune('A' + i))}
	}
	s, _ := newTestScheduler(newStubStore(guilds...), &stubSource{}, &stubSink{}, nil)
	if got := s.RunCycle(context.Background()); got != 5*testBase {
		t.Fatalf("ожидали паузу %v, получили %v", 5*testBase, got)
	}
}

func TestRunCycleEnumerationFailureUsesRetryDelay(t *testing.T) {
	store := newStubStore()
	store.listErr = errStore
	source := &stubSource{}
	s, _ := newTestScheduler(store, source, &stubSink{}, nil)
	if got := s.RunCycle(context.Background()); got != time.Minute {
		t.Fatalf("ожидали паузу 1m, получили %v", got)
	}
	if source.callCount() != 0 {
		t.Fatalf("не ожидали обращений к источнику, получили %d", source.callCount())
	}
}

func TestRunCycleNotifiesThenDedups(t *testing.T) {
	ch := channel("C1", "D1")
	ch.Upload.MentionTargets = []string{"R1"}
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{ch}})
	source := &stubSource{items: map[fetchCall]string{{"C1", domain.TrackUpload}: "V1"}}
	sink := &stubSink{}
	s, clock := newTestScheduler(store, source, sink, nil)

	s.RunCycle(context.Background())
	want := []domain.Notification{{
		GuildID:        "G1",
		ChannelID:      "C1",
		Track:          domain.TrackUpload,
		ItemID:         "V1",
		Destination:    "D1",
		MentionTargets: []string{"R1"},
		Item:           domain.Item{ID: "V1", ChannelID: "C1"},
	}}
	if diff := cmp.Diff(want, sink.sent); diff != "" {
		t.Fatalf("неожиданные уведомления (-want +got):\n%s", diff)
	}

	*clock = clock.Add(testBase)
	s.RunCycle(context.Background())
	if len(sink.sent) != 1 {
		t.Fatalf("повтор того же видео не должен давать уведомление, получили %d", len(sink.sent))
	}
}

func TestRunCycleChecksTracksInOrder(t *testing.T) {
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{channel("C1", "D1")}})
	source := &stubSource{}
	s, _ := newTestScheduler(store, source, &stubSink{}, nil)

	s.RunCycle(context.Background())
	want := []fetchCall{{"C1", domain.TrackUpload}, {"C1", domain.TrackLive}, {"C1", domain.TrackScheduled}}
	if diff := cmp.Diff(want, source.calls, cmp.AllowUnexported(fetchCall{})); diff != "" {
		t.Fatalf("неожиданный порядок проверок (-want +got):\n%s", diff)
	}
}

func TestRunCycleSkipsDisabledTrack(t *testing.T) {
	ch := channel("C1", "D1")
	ch.Live.Enabled = false
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{ch}})
	source := &stubSource{}
	s, _ := newTestScheduler(store, source, &stubSink{}, nil)

	s.RunCycle(context.Background())
	for _, call := range source.calls {
		if call.track == domain.TrackLive {
			t.Fatal("выключенный трек не должен проверяться")
		}
	}
	if source.callCount() != 2 {
		t.Fatalf("ожидали 2 обращения, получили %d", source.callCount())
	}
}

func TestRunCycleSkipsChannelWhenGuardHeld(t *testing.T) {
	guard := NewGuard()
	guard.TryAcquire("G1", "C1")
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{channel("C1", "D1")}})
	source := &stubSource{items: map[fetchCall]string{{"C1", domain.TrackUpload}: "V1"}}
	sink := &stubSink{}
	s, _ := newTestScheduler(store, source, sink, guard)

	s.RunCycle(context.Background())
	if source.callCount() != 0 {
		t.Fatalf("канал под блокировкой не должен проверяться, получили %d обращений", source.callCount())
	}
	if len(sink.sent) != 0 {
		t.Fatalf("не ожидали уведомлений, получили %d", len(sink.sent))
	}
	if guard.InFlight() != 1 {
		t.Fatal("чужая блокировка не должна сниматься")
	}
}

func TestRunCycleDropsNotificationWithoutDestination(t *testing.T) {
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{channel("C1", "")}})
	source := &stubSource{items: map[fetchCall]string{{"C1", domain.TrackUpload}: "V1"}}
	sink := &stubSink{}
	s, _ := newTestScheduler(store, source, sink, nil)

	s.RunCycle(context.Background())
	if len(sink.sent) != 0 {
		t.Fatalf("уведомление без канала доставки должно отбрасываться, получили %d", len(sink.sent))
	}
}

func TestRunCycleIsolatesChannelFailures(t *testing.T) {
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{channel("C1", "D1"), channel("C2", "D2")}})
	store.setErr = errStore
	source := &stubSource{items: map[fetchCall]string{
		{"C1", domain.TrackUpload}: "V1",
		{"C2", domain.TrackUpload}: "V2",
	}}
	guard := NewGuard()
	s, _ := newTestScheduler(store, source, &stubSink{}, guard)

	if got := s.RunCycle(context.Background()); got != testBase {
		t.Fatalf("ожидали обычную паузу, получили %v", got)
	}
	if source.callCount() != 2 {
		t.Fatalf("ожидали проверку обоих каналов, получили %d обращений", source.callCount())
	}
	if guard.InFlight() != 0 {
		t.Fatalf("блокировки должны сниматься после ошибки, активных %d", guard.InFlight())
	}
}

func TestRunCycleRecoversPanicAndReleasesGuard(t *testing.T) {
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{channel("C1", "D1")}})
	guard := NewGuard()
	s, _ := newTestScheduler(store, &stubSource{panic: true}, &stubSink{}, guard)

	s.RunCycle(context.Background())
	if guard.InFlight() != 0 {
		t.Fatalf("блокировка должна сниматься после паники, активных %d", guard.InFlight())
	}
}

func TestRunCycleRespectsGuildPollInterval(t *testing.T) {
	store := newStubStore(domain.GuildConfig{ID: "G1", PollIntervalSeconds: 120, Channels: []domain.ChannelConfig{channel("C1", "D1")}})
	source := &stubSource{}
	s, clock := newTestScheduler(store, source, &stubSink{}, nil)

	s.RunCycle(context.Background())
	*clock = clock.Add(testBase)
	s.RunCycle(context.Background())
	if source.callCount() != 3 {
		t.Fatalf("гильдия с интервалом 120s не должна проверяться через 30s, обращений %d", source.callCount())
	}
	*clock = clock.Add(2 * time.Minute)
	s.RunCycle(context.Background())
	if source.callCount() != 6 {
		t.Fatalf("ожидали повторную проверку после интервала, обращений %d", source.callCount())
	}
}

func TestRunCycleConcurrentChannels(t *testing.T) {
	var channels []domain.ChannelConfig
	items := make(map[fetchCall]string)
	for _, id := range []string{"C1", "C2", "C3", "C4"} {
		channels = append(channels, channel(id, "D"))
		items[fetchCall{id, domain.TrackLive}] = "L-" + id
	}
	store := newStubStore(domain.GuildConfig{ID: "G1", Channels: channels})
	sink := &stubSink{}
	s := NewScheduler(store, &stubSource{items: items}, sink, nil, Config{BaseInterval: testBase, Concurrency: 3}, zerolog.Nop())

	s.RunCycle(context.Background())
	if len(sink.sent) != 4 {
		t.Fatalf("ожидали 4 уведомления, получили %d", len(sink.sent))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ := newTestScheduler(newStubStore(), &stubSource{}, &stubSink{}, nil)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("планировщик не остановился после отмены контекста")
	}
}
