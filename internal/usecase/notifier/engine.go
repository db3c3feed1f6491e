package notifier

import (
	"context"
	"fmt"

	"yt-notify-bot/internal/domain"
)

// Decision описывает результат оценки кандидата.
type Decision struct {
	Notify bool
	Track  domain.Track
	ItemID string
}

// Engine решает, является ли кандидат новым, и обновляет состояние треков.
type Engine struct {
	store domain.ConfigStore
}

// NewEngine создаёт движок поверх хранилища состояния.
func NewEngine(store domain.ConfigStore) *Engine {
	return &Engine{store: store}
}

// Evaluate сравнивает кандидата с сохранённым состоянием.
// Состояние меняется только при решении отправить уведомление.
func (e *Engine) Evaluate(ctx context.Context, guildID, channelID string, track domain.Track, candidate *domain.Item) (Decision, error) {
	noop := Decision{Track: track}
	if candidate == nil || candidate.ID == "" {
		return noop, nil
	}
	id := candidate.ID

	switch track {
	case domain.TrackUpload:
		lastUpload, err := e.get(ctx, guildID, channelID, domain.TrackUpload)
		if err != nil {
			return noop, err
		}
		lastLive, err := e.get(ctx, guildID, channelID, domain.TrackLive)
		if err != nil {
			return noop, err
		}
		// завершённый эфир потом появляется как обычное видео
		if id == lastUpload || id == lastLive {
			return noop, nil
		}
	case domain.TrackLive:
		lastLive, err := e.get(ctx, guildID, channelID, domain.TrackLive)
		if err != nil {
			return noop, err
		}
		if id == lastLive {
			return noop, nil
		}
		lastScheduled, err := e.get(ctx, guildID, channelID, domain.TrackScheduled)
		if err != nil {
			return noop, err
		}
		if id == lastScheduled {
			if err := e.store.ClearTrackState(ctx, guildID, channelID, domain.TrackScheduled); err != nil {
				return noop, fmt.Errorf("сброс запланированного эфира: %w", err)
			}
		}
	case domain.TrackScheduled:
		lastScheduled, err := e.get(ctx, guildID, channelID, domain.TrackScheduled)
		if err != nil {
			return noop, err
		}
		lastLive, err := e.get(ctx, guildID, channelID, domain.TrackLive)
		if err != nil {
			return noop, err
		}
		if id == lastScheduled || id == lastLive {
			return noop, nil
		}
	default:
		return noop, fmt.Errorf("неизвестный трек %q", track)
	}

	if err := e.store.SetTrackState(ctx, guildID, channelID, track, id); err != nil {
		return noop, fmt.Errorf("сохранение состояния %s: %w", track, err)
	}
	return Decision{Notify: true, Track: track, ItemID: id}, nil
}

func (e *Engine) get(ctx context.Context, guildID, channelID string, track domain.Track) (string, error) {
	id, err := e.store.GetTrackState(ctx, guildID, channelID, track)
	if err != nil {
		return "", fmt.Errorf("чтение состояния %s: %w", track, err)
	}
	return id, nil
}
