// Package session keeps the per-user rolling conversation history.
//
// Every session starts with exactly one system turn that is never evicted.
// After each append the history is trimmed back to the system turn plus the
// last Window turns, so the context sent to the model stays bounded no matter
// how long a conversation runs.
package session

import (
	"sync"

	"github.com/lowkeylabs/murmur/llm"
)

const DefaultWindow = 25

type Store struct {
	mu       sync.Mutex
	sessions map[int64]*session

	window       int
	systemPrompt string
}

type session struct {
	mu    sync.Mutex
	turns []llm.Message
}

type Options struct {
	// Window is the maximum number of non-system turns retained per user.
	Window int
	// SystemPrompt seeds every new session as its first turn.
	SystemPrompt string
}

func NewStore(opts Options) *Store {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		sessions:     make(map[int64]*session),
		window:       window,
		systemPrompt: opts.SystemPrompt,
	}
}

// getOrCreate only takes the store lock for map access; per-session state is
// guarded by the session's own mutex so users never contend with each other.
func (s *Store) getOrCreate(userID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess := &session{
		turns: []llm.Message{{Role: llm.RoleSystem, Content: s.systemPrompt}},
	}
	s.sessions[userID] = sess
	return sess
}

// Append records one turn for the user and enforces the window bound as a
// single atomic step with respect to other appends for the same user.
func (s *Store) Append(userID int64, msg llm.Message) {
	sess := s.getOrCreate(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, msg)
	if len(sess.turns)-1 > s.window {
		trimmed := make([]llm.Message, 0, s.window+1)
		trimmed = append(trimmed, sess.turns[0])
		trimmed = append(trimmed, sess.turns[len(sess.turns)-s.window:]...)
		sess.turns = trimmed
	}
}

// Messages returns a snapshot of the user's history, creating the session on
// first contact.
func (s *Store) Messages(userID int64) []llm.Message {
	sess := s.getOrCreate(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]llm.Message(nil), sess.turns...)
}

// Len reports the number of turns currently held for the user, system turn
// included.
func (s *Store) Len(userID int64) int {
	sess := s.getOrCreate(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.turns)
}
