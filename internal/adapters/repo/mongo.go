package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"yt-notify-bot/internal/domain"
	"yt-notify-bot/internal/infra/metrics"
)

const (
	guildsCollection = "guilds"
	stateCollection  = "track_state"
)

type guildDocument struct {
	GuildID             string                 `bson:"guild_id"`
	PollIntervalSeconds int                    `bson:"pollIntervalSeconds,omitempty"`
	Channels            []domain.ChannelConfig `bson:"channels"`
	UpdatedAt           time.Time              `bson:"updatedAt"`
}

type stateDocument struct {
	GuildID   string `bson:"guild_id"`
	ChannelID string `bson:"channel_id"`
	domain.TrackState `bson:",inline"`
}

// Mongo хранит конфигурацию гильдий в MongoDB: документ на гильдию и документ состояния на канал.
type Mongo struct {
	guilds *mongo.Collection
	state  *mongo.Collection
}

var (
	_ domain.ConfigStore = (*Mongo)(nil)
	_ domain.GuildRepo   = (*Mongo)(nil)
)

// NewMongo создаёт адаптер поверх базы.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{guilds: db.Collection(guildsCollection), state: db.Collection(stateCollection)}
}

// EnsureIndexes создаёт уникальные индексы по ключам гильдии и канала.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.guilds.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err == nil {
		_, err = m.state.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "guild_id", Value: 1}, {Key: "channel_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
	}
	metrics.ObserveNetworkRequest("mongo", "create_indexes", guildsCollection, start, err)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func (d guildDocument) config() domain.GuildConfig {
	return domain.GuildConfig{
		ID:                  d.GuildID,
		PollIntervalSeconds: d.PollIntervalSeconds,
		Channels:            d.Channels,
		UpdatedAt:           d.UpdatedAt,
	}
}

// GetAllGuildConfigs реализует domain.ConfigStore.
func (m *Mongo) GetAllGuildConfigs(ctx context.Context) ([]domain.GuildConfig, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	cur, err := m.guilds.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "guild_id", Value: 1}}))
	var docs []guildDocument
	if err == nil {
		err = cur.All(ctx, &docs)
	}
	metrics.ObserveNetworkRequest("mongo", "guilds_find", guildsCollection, start, err)
	if err != nil {
		return nil, fmt.Errorf("list guild configs: %w", err)
	}
	out := make([]domain.GuildConfig, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.config())
	}
	return out, nil
}

// GetGuildConfig реализует domain.GuildRepo.
func (m *Mongo) GetGuildConfig(ctx context.Context, guildID string) (domain.GuildConfig, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var doc guildDocument
	err := m.guilds.FindOne(ctx, bson.M{"guild_id": guildID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.ObserveNetworkRequest("mongo", "guilds_find_one", guildsCollection, start, nil)
		return domain.GuildConfig{}, domain.ErrGuildNotFound
	}
	metrics.ObserveNetworkRequest("mongo", "guilds_find_one", guildsCollection, start, err)
	if err != nil {
		return domain.GuildConfig{}, err
	}
	return doc.config(), nil
}

// SaveGuildConfig реализует domain.GuildRepo.
func (m *Mongo) SaveGuildConfig(ctx context.Context, cfg domain.GuildConfig) error {
	if cfg.ID == "" {
		return errors.New("guild id is empty")
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	doc := guildDocument{
		GuildID:             cfg.ID,
		PollIntervalSeconds: cfg.PollIntervalSeconds,
		Channels:            cfg.Channels,
		UpdatedAt:           cfg.UpdatedAt,
	}
	if doc.Channels == nil {
		doc.Channels = []domain.ChannelConfig{}
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.guilds.ReplaceOne(ctx, bson.M{"guild_id": cfg.ID}, doc, options.Replace().SetUpsert(true))
	metrics.ObserveNetworkRequest("mongo", "guilds_replace", guildsCollection, start, err)
	return err
}

// DeleteGuildConfig реализует domain.GuildRepo.
func (m *Mongo) DeleteGuildConfig(ctx context.Context, guildID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.guilds.DeleteOne(ctx, bson.M{"guild_id": guildID})
	metrics.ObserveNetworkRequest("mongo", "guilds_delete", guildsCollection, start, err)
	return err
}

// DeleteChannelState реализует domain.GuildRepo.
func (m *Mongo) DeleteChannelState(ctx context.Context, guildID, channelID string) error {
	filter := bson.M{"guild_id": guildID}
	if channelID != "" {
		filter["channel_id"] = channelID
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.state.DeleteMany(ctx, filter)
	metrics.ObserveNetworkRequest("mongo", "state_delete", stateCollection, start, err)
	return err
}

// GetTrackState реализует domain.ConfigStore.
func (m *Mongo) GetTrackState(ctx context.Context, guildID, channelID string, track domain.Track) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var doc stateDocument
	err := m.state.FindOne(ctx, bson.M{"guild_id": guildID, "channel_id": channelID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.ObserveNetworkRequest("mongo", "state_find_one", stateCollection, start, nil)
		return "", nil
	}
	metrics.ObserveNetworkRequest("mongo", "state_find_one", stateCollection, start, err)
	if err != nil {
		return "", err
	}
	return doc.Get(track), nil
}

// SetTrackState реализует domain.ConfigStore.
func (m *Mongo) SetTrackState(ctx context.Context, guildID, channelID string, track domain.Track, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.state.UpdateOne(ctx,
		bson.M{"guild_id": guildID, "channel_id": channelID},
		bson.M{"$set": bson.M{stateField(track): id}},
		options.Update().SetUpsert(true),
	)
	metrics.ObserveNetworkRequest("mongo", "state_update", stateCollection, start, err)
	return err
}

// ClearTrackState реализует domain.ConfigStore.
func (m *Mongo) ClearTrackState(ctx context.Context, guildID, channelID string, track domain.Track) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err := m.state.UpdateOne(ctx,
		bson.M{"guild_id": guildID, "channel_id": channelID},
		bson.M{"$unset": bson.M{stateField(track): ""}},
	)
	metrics.ObserveNetworkRequest("mongo", "state_update", stateCollection, start, err)
	return err
}

func stateField(track domain.Track) string {
	switch track {
	case domain.TrackLive:
		return "lastLive"
	case domain.TrackScheduled:
		return "lastScheduled"
	default:
		return "lastUpload"
	}
}
