package control

import (
	"sync"

	"github.com/san-kum/quadsim/internal/dynamo"
)

// Source holds the velocity command read once per control step.
type Source struct {
	mu  sync.RWMutex
	cmd dynamo.Command
}

func NewSource(initial dynamo.Command) *Source {
	return &Source{cmd: initial}
}

// Get returns the current command unchanged.
func (s *Source) Get() dynamo.Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmd
}

// Set replaces the command. Magnitudes are not checked.
func (s *Source) Set(cmd dynamo.Command) {
	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
}

// Nudge adds delta to the current command and returns the result.
func (s *Source) Nudge(delta dynamo.Command) dynamo.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cmd {
		s.cmd[i] += delta[i]
	}
	return s.cmd
}
