package notifier

import "sync"

type checkKey struct {
	guildID   string
	channelID string
}

// Guard не даёт двум проверкам одного канала гильдии выполняться одновременно.
// Блокировки живут только в памяти процесса.
type Guard struct {
	mu       sync.Mutex
	inFlight map[checkKey]struct{}
}

// NewGuard создаёт пустой Guard.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[checkKey]struct{})}
}

// TryAcquire захватывает канал и возвращает false, если проверка уже идёт.
func (g *Guard) TryAcquire(guildID, channelID string) bool {
	key := checkKey{guildID: guildID, channelID: channelID}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

// Release снимает блокировку. Повторный вызов ничего не делает.
func (g *Guard) Release(guildID, channelID string) {
	g.mu.Lock()
	delete(g.inFlight, checkKey{guildID: guildID, channelID: channelID})
	g.mu.Unlock()
}

// InFlight возвращает количество активных проверок.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
