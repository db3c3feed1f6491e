package notifier

import (
	"context"
	"errors"
	"testing"

	"yt-notify-bot/internal/domain"
)

func item(id string) *domain.Item {
	return &domain.Item{ID: id}
}

func TestEvaluateUploadNotifiesOnce(t *testing.T) {
	store := newStubStore()
	engine := NewEngine(store)
	ctx := context.Background()

	d, err := engine.Evaluate(ctx, "G1", "C1", domain.TrackUpload, item("V1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !d.Notify || d.ItemID != "V1" || d.Track != domain.TrackUpload {
		t.Fatalf("ожидали notify-upload(V1), получили %+v", d)
	}
	if got := store.get("G1", "C1", domain.TrackUpload); got != "V1" {
		t.Fatalf("ожидали lastUpload=V1, получили %q", got)
	}

	writes := store.writes
	d, err = engine.Evaluate(ctx, "G1", "C1", domain.TrackUpload, item("V1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.Notify {
		t.Fatalf("ожидали no-op при повторе, получили %+v", d)
	}
	if store.writes != writes {
		t.Fatalf("no-op не должен менять состояние: было %d записей, стало %d", writes, store.writes)
	}
}

func TestEvaluateUploadSkipsFinishedLive(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackLive, "L1")
	engine := NewEngine(store)

	d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackUpload, item("L1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.Notify {
		t.Fatal("видео, совпадающее с lastLive, не должно давать уведомление")
	}
	if got := store.get("G1", "C1", domain.TrackUpload); got != "" {
		t.Fatalf("lastUpload не должен меняться, получили %q", got)
	}
}

func TestEvaluateUploadSequenceNeverNotifiesLastLive(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackLive, "L")
	engine := NewEngine(store)
	for _, id := range []string{"A", "B", "L", "C", "L", "L"} {
		d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackUpload, item(id))
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if id == "L" && d.Notify {
			t.Fatalf("получили уведомление для id, равного lastLive")
		}
	}
}

func TestEvaluateLivePromotesScheduled(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackScheduled, "S1")
	engine := NewEngine(store)

	d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackLive, item("S1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !d.Notify || d.Track != domain.TrackLive || d.ItemID != "S1" {
		t.Fatalf("ожидали notify-live(S1), получили %+v", d)
	}
	if got := store.get("G1", "C1", domain.TrackScheduled); got != "" {
		t.Fatalf("ожидали очищенный lastScheduled, получили %q", got)
	}
	if got := store.get("G1", "C1", domain.TrackLive); got != "S1" {
		t.Fatalf("ожидали lastLive=S1, получили %q", got)
	}
}

func TestEvaluateLiveKeepsUnrelatedScheduled(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackScheduled, "S2")
	engine := NewEngine(store)

	if _, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackLive, item("L1")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := store.get("G1", "C1", domain.TrackScheduled); got != "S2" {
		t.Fatalf("lastScheduled не должен меняться, получили %q", got)
	}
}

func TestEvaluateLiveRepeatIsNoop(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackLive, "L1")
	store.put("G1", "C1", domain.TrackScheduled, "L1")
	engine := NewEngine(store)

	d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackLive, item("L1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.Notify || store.writes != 0 {
		t.Fatalf("ожидали no-op без записей, получили %+v и %d записей", d, store.writes)
	}
}

func TestEvaluateScheduledSkipsAlreadyLive(t *testing.T) {
	store := newStubStore()
	store.put("G1", "C1", domain.TrackLive, "S1")
	engine := NewEngine(store)

	d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackScheduled, item("S1"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.Notify {
		t.Fatal("эфир, который уже идёт, не должен снова объявляться запланированным")
	}

	d, err = engine.Evaluate(context.Background(), "G1", "C1", domain.TrackScheduled, item("S2"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !d.Notify || store.get("G1", "C1", domain.TrackScheduled) != "S2" {
		t.Fatalf("ожидали notify-scheduled(S2), получили %+v", d)
	}
}

func TestEvaluateNilCandidateIsNoop(t *testing.T) {
	store := newStubStore()
	engine := NewEngine(store)
	for _, track := range domain.Tracks {
		d, err := engine.Evaluate(context.Background(), "G1", "C1", track, nil)
		if err != nil || d.Notify {
			t.Fatalf("ожидали no-op для %s, получили %+v, %v", track, d, err)
		}
	}
	if store.writes != 0 {
		t.Fatalf("ожидали отсутствие записей, получили %d", store.writes)
	}
}

func TestEvaluateStoreErrorIsReturned(t *testing.T) {
	store := newStubStore()
	store.setErr = errStore
	engine := NewEngine(store)

	d, err := engine.Evaluate(context.Background(), "G1", "C1", domain.TrackUpload, item("V1"))
	if !errors.Is(err, errStore) {
		t.Fatalf("ожидали ошибку хранилища, получили %v", err)
	}
	if d.Notify {
		t.Fatal("при ошибке записи уведомление не должно отправляться")
	}
}
