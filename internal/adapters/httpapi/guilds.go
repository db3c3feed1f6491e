// Package httpapi отдаёт административное API настроек гильдий.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"yt-notify-bot/internal/domain"
	httpinfra "yt-notify-bot/internal/infra/http"
	"yt-notify-bot/internal/usecase/guilds"
)

// GuildLister перечисляет настроенные гильдии.
type GuildLister interface {
	GetAllGuildConfigs(ctx context.Context) ([]domain.GuildConfig, error)
}

// GuildAdmin читает и сбрасывает настройки одной гильдии.
type GuildAdmin interface {
	GetGuildConfig(ctx context.Context, guildID string) (domain.GuildConfig, bool, error)
	UnsetNotifications(ctx context.Context, guildID string) guilds.Result
}

type guildsHandler struct {
	lister GuildLister
	admin  GuildAdmin
	log    zerolog.Logger
}

type guildSummary struct {
	ID                  string `json:"id"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	Channels            int    `json:"channels"`
}

// Mount регистрирует /api/v1/guilds под bearer-авторизацией.
func Mount(r chi.Router, lister GuildLister, admin GuildAdmin, token string, logger zerolog.Logger) {
	h := &guildsHandler{lister: lister, admin: admin, log: logger}
	r.Route("/api/v1/guilds", func(api chi.Router) {
		api.Use(httpinfra.TokenAuthMiddleware(token))
		api.Get("/", h.list)
		api.Get("/{guildID}", h.get)
		api.Delete("/{guildID}", h.delete)
	})
}

func (h *guildsHandler) list(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.lister.GetAllGuildConfigs(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: не удалось получить гильдии")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to list guilds")
		return
	}
	out := make([]guildSummary, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, guildSummary{
			ID:                  cfg.ID,
			PollIntervalSeconds: int(cfg.PollInterval().Seconds()),
			Channels:            len(cfg.Channels),
		})
	}
	httpinfra.WriteJSON(w, out)
}

func (h *guildsHandler) get(w http.ResponseWriter, r *http.Request) {
	guildID := strings.TrimSpace(chi.URLParam(r, "guildID"))
	cfg, found, err := h.admin.GetGuildConfig(r.Context(), guildID)
	if err != nil {
		h.log.Error().Err(err).Str("guild_id", guildID).Msg("api: не удалось получить гильдию")
		httpinfra.WriteError(w, http.StatusInternalServerError, "failed to load guild")
		return
	}
	if !found {
		httpinfra.WriteError(w, http.StatusNotFound, "guild not configured")
		return
	}
	if cfg.Channels == nil {
		cfg.Channels = []domain.ChannelConfig{}
	}
	httpinfra.WriteJSON(w, cfg)
}

func (h *guildsHandler) delete(w http.ResponseWriter, r *http.Request) {
	guildID := strings.TrimSpace(chi.URLParam(r, "guildID"))
	res := h.admin.UnsetNotifications(r.Context(), guildID)
	if !res.Success {
		httpinfra.WriteError(w, http.StatusInternalServerError, res.Message)
		return
	}
	h.log.Info().Str("guild_id", guildID).Msg("api: настройки гильдии удалены")
	w.WriteHeader(http.StatusNoContent)
}
