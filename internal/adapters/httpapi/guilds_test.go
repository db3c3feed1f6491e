package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/adapters/repo"
	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/usecase/guilds"
)

func newRouter(t *testing.T, token string) (http.Handler, *repo.Memory, *guilds.Service) {
	t.Helper()
	store := repo.NewMemory()
	svc := guilds.NewService(store, zerolog.Nop())
	r := chi.NewRouter()
	Mount(r, store, svc, token, zerolog.Nop())
	return r, store, svc
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListGuilds(t *testing.T) {
	h, _, svc := newRouter(t, "")
	ctx := context.Background()
	svc.AddChannel(ctx, "G2", domain.NewChannelConfig("UC1", "D1"))
	svc.AddChannel(ctx, "G1", domain.NewChannelConfig("UC1", "D1"))
	svc.AddChannel(ctx, "G1", domain.NewChannelConfig("UC2", "D1"))
	svc.SetPollInterval(ctx, "G2", 120)

	rec := do(h, http.MethodGet, "/api/v1/guilds/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var got []guildSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	want := []guildSummary{
		{ID: "G1", PollIntervalSeconds: 30, Channels: 2},
		{ID: "G2", PollIntervalSeconds: 120, Channels: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("неожиданный список (-want +got):\n%s", diff)
	}
}

func TestGetGuild(t *testing.T) {
	h, _, svc := newRouter(t, "")
	svc.AddChannel(context.Background(), "G1", domain.NewChannelConfig("UC1", "D1"))

	rec := do(h, http.MethodGet, "/api/v1/guilds/G1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var got domain.GuildConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	if got.ID != "G1" || len(got.Channels) != 1 || got.Channels[0].Live.Destination != "D1" {
		t.Fatalf("неожиданная конфигурация: %+v", got)
	}

	if rec := do(h, http.MethodGet, "/api/v1/guilds/G404", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestDeleteGuildClearsConfigAndState(t *testing.T) {
	h, store, svc := newRouter(t, "")
	ctx := context.Background()
	svc.AddChannel(ctx, "G1", domain.NewChannelConfig("UC1", "D1"))
	_ = store.SetTrackState(ctx, "G1", "UC1", domain.TrackUpload, "V1")

	if rec := do(h, http.MethodDelete, "/api/v1/guilds/G1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	if _, found, _ := svc.GetGuildConfig(ctx, "G1"); found {
		t.Fatalf("гильдия должна быть удалена")
	}
	if id, _ := store.GetTrackState(ctx, "G1", "UC1", domain.TrackUpload); id != "" {
		t.Fatalf("состояние должно быть удалено, получили %q", id)
	}
}

func TestGuildRoutesRequireToken(t *testing.T) {
	h, _, _ := newRouter(t, "secret")

	if rec := do(h, http.MethodGet, "/api/v1/guilds/", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401 без токена, получили %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/guilds/", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401 с неверным токеном, получили %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/guilds/", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200 с токеном, получили %d", rec.Code)
	}
}
