package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

// Postgres реализует хранилище конфигурации гильдий на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ConfigStore = (*Postgres)(nil)
	_ domain.GuildRepo   = (*Postgres)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS guild_configs (
	guild_id   TEXT PRIMARY KEY,
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS track_state (
	guild_id   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	track      TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (guild_id, channel_id, track)
);
`

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetAllGuildConfigs реализует domain.ConfigStore.
func (p *Postgres) GetAllGuildConfigs(ctx context.Context) ([]domain.GuildConfig, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT guild_id, config, updated_at FROM guild_configs ORDER BY guild_id`)
	metrics.ObserveNetworkRequest("postgres", "guild_configs_list", "guild_configs", start, err)
	if err != nil {
		return nil, fmt.Errorf("list guild configs: %w", err)
	}
	defer rows.Close()

	var out []domain.GuildConfig
	for rows.Next() {
		cfg, err := scanGuildConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list guild configs: %w", err)
	}
	return out, nil
}

// GetGuildConfig реализует domain.GuildRepo.
func (p *Postgres) GetGuildConfig(ctx context.Context, guildID string) (domain.GuildConfig, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT guild_id, config, updated_at FROM guild_configs WHERE guild_id=$1`, guildID)
	cfg, err := scanGuildConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "guild_configs_get", "guild_configs", start, nil)
		return domain.GuildConfig{}, domain.ErrGuildNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "guild_configs_get", "guild_configs", start, err)
	if err != nil {
		return domain.GuildConfig{}, err
	}
	return cfg, nil
}

// SaveGuildConfig реализует domain.GuildRepo.
func (p *Postgres) SaveGuildConfig(ctx context.Context, cfg domain.GuildConfig) error {
	if cfg.ID == "" {
		return errors.New("guild id is empty")
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal guild config: %w", err)
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO guild_configs (guild_id, config, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (guild_id) DO UPDATE SET config=EXCLUDED.config, updated_at=EXCLUDED.updated_at
`, cfg.ID, payload, cfg.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "guild_configs_upsert", "guild_configs", start, err)
	return err
}

// DeleteGuildConfig реализует domain.GuildRepo.
func (p *Postgres) DeleteGuildConfig(ctx context.Context, guildID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM guild_configs WHERE guild_id=$1`, guildID)
	metrics.ObserveNetworkRequest("postgres", "guild_configs_delete", "guild_configs", start, err)
	return err
}

// DeleteChannelState реализует domain.GuildRepo.
func (p *Postgres) DeleteChannelState(ctx context.Context, guildID, channelID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var err error
	if channelID == "" {
		_, err = p.pool.Exec(ctx, `DELETE FROM track_state WHERE guild_id=$1`, guildID)
	} else {
		_, err = p.pool.Exec(ctx, `DELETE FROM track_state WHERE guild_id=$1 AND channel_id=$2`, guildID, channelID)
	}
	metrics.ObserveNetworkRequest("postgres", "track_state_delete", "track_state", start, err)
	return err
}

// GetTrackState реализует domain.ConfigStore.
func (p *Postgres) GetTrackState(ctx context.Context, guildID, channelID string, track domain.Track) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var itemID string
	err := p.pool.QueryRow(ctx, `
SELECT item_id FROM track_state WHERE guild_id=$1 AND channel_id=$2 AND track=$3
`, guildID, channelID, string(track)).Scan(&itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "track_state_get", "track_state", start, nil)
		return "", nil
	}
	metrics.ObserveNetworkRequest("postgres", "track_state_get", "track_state", start, err)
	if err != nil {
		return "", err
	}
	return itemID, nil
}

// SetTrackState реализует domain.ConfigStore.
func (p *Postgres) SetTrackState(ctx context.Context, guildID, channelID string, track domain.Track, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO track_state (guild_id, channel_id, track, item_id, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (guild_id, channel_id, track) DO UPDATE SET item_id=EXCLUDED.item_id, updated_at=now()
`, guildID, channelID, string(track), id)
	metrics.ObserveNetworkRequest("postgres", "track_state_upsert", "track_state", start, err)
	return err
}

// ClearTrackState реализует domain.ConfigStore.
func (p *Postgres) ClearTrackState(ctx context.Context, guildID, channelID string, track domain.Track) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM track_state WHERE guild_id=$1 AND channel_id=$2 AND track=$3
`, guildID, channelID, string(track))
	metrics.ObserveNetworkRequest("postgres", "track_state_delete", "track_state", start, err)
	return err
}

func scanGuildConfig(row pgx.Row) (domain.GuildConfig, error) {
	var (
		guildID   string
		payload   []byte
		updatedAt time.Time
	)
	if err := row.Scan(&guildID, &payload, &updatedAt); err != nil {
		return domain.GuildConfig{}, err
	}
	var cfg domain.GuildConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return domain.GuildConfig{}, fmt.Errorf("decode guild config %s: %w", guildID, err)
	}
	cfg.ID = guildID
	cfg.UpdatedAt = updatedAt
	return cfg, nil
}
