package itree

import (
	"fmt"
	"math/rand"
	"strings"
)

// Searcher represents a strategy for finding the next execution state to execute.
type Searcher interface {
	// Returns the next state to explore.
	SelectState() *ExecutionState

	// Adds states to the current searcher.
	AddState(state *ExecutionState)
}

// NewSearcher returns a searcher by name. Valid names are "dfs", "bfs",
// "random" and a comma-separated list of those for a MultiSearcher.
func NewSearcher(name string, rand *rand.Rand) (Searcher, error) {
	switch name {
	case "", "dfs":
		return NewDFSSearcher(), nil
	case "bfs":
		return NewBFSSearcher(), nil
	case "random":
		return NewRandomSearcher(rand), nil
	}

	parts := strings.Split(name, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("itree: unknown searcher: %q", name)
	}

	searchers := make([]Searcher, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("itree: unknown searcher: %q", name)
		}
		s, err := NewSearcher(strings.TrimSpace(part), rand)
		if err != nil {
			return nil, err
		}
		searchers[i] = s
	}
	return NewMultiSearcher(searchers...), nil
}

var _ Searcher = (*MultiSearcher)(nil)

// MultiSearcher represents a Searcher that chooses a searcher round-robin.
// Every state is added to each searcher so states already executed through
// another searcher are skipped.
type MultiSearcher struct {
	searchers []Searcher
	index     int
}

// NewMultiSearcher returns a new instance of MultiSearcher.
func NewMultiSearcher(searchers ...Searcher) *MultiSearcher {
	return &MultiSearcher{searchers: searchers}
}

// SelectState returns the next state to explore from the next searcher.
func (s *MultiSearcher) SelectState() *ExecutionState {
	for n := 0; n < len(s.searchers); {
		searcher := s.searchers[s.index]
		if s.index++; s.index >= len(s.searchers) {
			s.index = 0
		}

		state := searcher.SelectState()
		if state == nil {
			n++
			continue
		} else if state.Done() {
			continue
		}
		return state
	}
	return nil
}

// AddState adds a new state to the searcher.
func (s *MultiSearcher) AddState(state *ExecutionState) {
	for _, searcher := range s.searchers {
		searcher.AddState(state)
	}
}

// DFSSearcher represents a searcher with a depth-first search strategy.
type DFSSearcher struct {
	states []*ExecutionState
}

// NewDFSSearcher returns a new instance of DFSSearcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

// SelectState returns the most recently added state.
func (s *DFSSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	state := s.states[len(s.states)-1]
	s.states[len(s.states)-1] = nil
	s.states = s.states[:len(s.states)-1]
	return state
}

// AddState adds a new state to the searcher.
func (s *DFSSearcher) AddState(state *ExecutionState) {
	s.states = append(s.states, state)
}

// BFSSearcher represents a searcher with a breadth-first search strategy.
type BFSSearcher struct {
	states []*ExecutionState
}

// NewBFSSearcher returns a new instance of BFSSearcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

// SelectState returns the least recently added state.
func (s *BFSSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	state := s.states[0]
	s.states = s.states[1:]
	return state
}

// AddState adds a new state to the searcher.
func (s *BFSSearcher) AddState(state *ExecutionState) {
	s.states = append(s.states, state)
}

type RandomSearcher struct {
	states []*ExecutionState
	rand   *rand.Rand
}

func NewRandomSearcher(rand *rand.Rand) *RandomSearcher {
	return &RandomSearcher{
		rand: rand,
	}
}

// SelectState returns a random execution state to explore.
func (s *RandomSearcher) SelectState() *ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	i := s.rand.Intn(len(s.states))
	state := s.states[i]
	s.states = append(s.states[:i], s.states[i+1:]...)
	return state
}

// AddState adds a new state to the searcher.
func (s *RandomSearcher) AddState(state *ExecutionState) {
	s.states = append(s.states, state)
}
