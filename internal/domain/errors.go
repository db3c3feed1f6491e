package domain

import "errors"

var (
	// ErrGuildNotFound возвращается, если у гильдии нет сохранённой конфигурации.
	ErrGuildNotFound = errors.New("guild config not found")
	// ErrChannelNotFound возвращается, если канал не отслеживается гильдией.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrUnknownEndpoint возвращается для неизвестной пары group/sub Statbot.
	ErrUnknownEndpoint = errors.New("unknown statbot endpoint")
	// ErrRateLimited возвращается, если Statbot ограничил частоту запросов.
	ErrRateLimited = errors.New("statbot rate limited")
)

// ErrUndeliverable помечает уведомление, которое нельзя доставить повтором: канал недоступен или роль не найдена.
var ErrUndeliverable = errors.New("notification undeliverable")
