package game

import (
	"fmt"
	"sort"
	"sync"

	"telegram-casino-bot/internal/model"
)

// Registry looks games up by start command and by type.
type Registry struct {
	mu     sync.RWMutex
	byCmd  map[string]Game
	byType map[model.GameType]Game
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byCmd:  make(map[string]Game),
		byType: make(map[model.GameType]Game),
	}
}

// Register adds g, replacing any game with the same command or type.
func (r *Registry) Register(g Game) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Command() == "" {
		return fmt.Errorf("game command cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCmd[g.Command()] = g
	r.byType[g.Type()] = g
	return nil
}

// Get finds a game by start command.
func (r *Registry) Get(command string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byCmd[command]
	return g, ok
}

// ByType finds the game that owns sessions of type t.
func (r *Registry) ByType(t model.GameType) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byType[t]
	return g, ok
}

// List returns the games ordered by command.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Game, 0, len(r.byCmd))
	for _, g := range r.byCmd {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Command() < games[j].Command() })
	return games
}

// Commands returns the registered start commands.
func (r *Registry) Commands() []string {
	games := r.List()
	cmds := make([]string, len(games))
	for i, g := range games {
		cmds[i] = g.Command()
	}
	return cmds
}
