package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"yt-notify-bot/internal/domain"
)

func TestMemoryGuildConfigCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cfg := domain.GuildConfig{ID: "G1", Channels: []domain.ChannelConfig{domain.NewChannelConfig("UC1", "D1")}}
	cfg.Channels[0].Upload.MentionTargets = []string{"R1"}
	if err := m.SaveGuildConfig(ctx, cfg); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	cfg.Channels[0].Upload.MentionTargets[0] = "changed"

	got, err := m.GetGuildConfig(ctx, "G1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if diff := cmp.Diff([]string{"R1"}, got.Channels[0].Upload.MentionTargets); diff != "" {
		t.Fatalf("хранилище разделяет срез с вызывающим (-want +got):\n%s", diff)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("ожидали проставленное время обновления")
	}

	got.Channels[0].Upload.Destination = "other"
	again, _ := m.GetGuildConfig(ctx, "G1")
	if again.Channels[0].Upload.Destination != "D1" {
		t.Fatalf("изменение копии попало в хранилище")
	}
}

func TestMemoryGuildNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetGuildConfig(context.Background(), "nope"); !errors.Is(err, domain.ErrGuildNotFound) {
		t.Fatalf("ожидали ErrGuildNotFound, получили %v", err)
	}
}

func TestMemoryListSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"G3", "G1", "G2"} {
		_ = m.SaveGuildConfig(ctx, domain.GuildConfig{ID: id})
	}
	all, err := m.GetAllGuildConfigs(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var ids []string
	for _, g := range all {
		ids = append(ids, g.ID)
	}
	if diff := cmp.Diff([]string{"G1", "G2", "G3"}, ids); diff != "" {
		t.Fatalf("неожиданный порядок (-want +got):\n%s", diff)
	}
}

func TestMemoryTrackState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.SetTrackState(ctx, "G1", "UC1", domain.TrackLive, "L1")
	_ = m.SetTrackState(ctx, "G1", "UC1", domain.TrackScheduled, "S1")
	_ = m.SetTrackState(ctx, "G1", "UC2", domain.TrackUpload, "V1")
	_ = m.SetTrackState(ctx, "G2", "UC1", domain.TrackUpload, "V2")

	if got, _ := m.GetTrackState(ctx, "G1", "UC1", domain.TrackLive); got != "L1" {
		t.Fatalf("ожидали L1, получили %q", got)
	}
	_ = m.ClearTrackState(ctx, "G1", "UC1", domain.TrackScheduled)
	if got, _ := m.GetTrackState(ctx, "G1", "UC1", domain.TrackScheduled); got != "" {
		t.Fatalf("ожидали очищенное состояние, получили %q", got)
	}

	_ = m.DeleteChannelState(ctx, "G1", "UC1")
	if got, _ := m.GetTrackState(ctx, "G1", "UC1", domain.TrackLive); got != "" {
		t.Fatalf("ожидали удалённое состояние канала")
	}
	if got, _ := m.GetTrackState(ctx, "G1", "UC2", domain.TrackUpload); got != "V1" {
		t.Fatalf("состояние другого канала не должно удаляться")
	}

	_ = m.DeleteChannelState(ctx, "G1", "")
	if got, _ := m.GetTrackState(ctx, "G1", "UC2", domain.TrackUpload); got != "" {
		t.Fatalf("ожидали удаление всего состояния гильдии")
	}
	if got, _ := m.GetTrackState(ctx, "G2", "UC1", domain.TrackUpload); got != "V2" {
		t.Fatalf("состояние другой гильдии не должно удаляться")
	}
}

func TestStateField(t *testing.T) {
	want := map[domain.Track]string{
		domain.TrackUpload:    "lastUpload",
		domain.TrackLive:      "lastLive",
		domain.TrackScheduled: "lastScheduled",
	}
	for track, field := range want {
		if got := stateField(track); got != field {
			t.Fatalf("ожидали %s для %s, получили %s", field, track, got)
		}
	}
}
