package relay

import (
	"sync"

	"github.com/ferryhq/ferry/internal/storage"
)

// DeferredJob is an upload suspended at the folder-resolution
// boundary: the attachment is already staged locally and waits for the
// chat to pick a destination folder.
type DeferredJob struct {
	Attachment Attachment
	StagingDir string
	LocalPath  string
}

// Session is one chat's relay state. Sessions are memory-resident
// only; an in-flight session is lost on restart.
type Session struct {
	// Handle is the authenticated storage account, nil until the chat
	// submits valid credentials.
	Handle storage.Handle
	// SelectedFolder is the destination chosen through a folder
	// prompt. Empty means no explicit selection has been made.
	SelectedFolder string
	// Pending is the folder list most recently shown to the chat,
	// 1-based for ordinal replies. A selection is resolved against
	// this exact list, never against a re-fetched one.
	Pending []string
	// Prompted records whether the chat has ever been shown a folder
	// prompt; it drives the default-folder policy.
	Prompted bool
	// Deferred holds uploads suspended until a folder is selected.
	Deferred []DeferredJob
}

// Authenticated reports whether the session carries a storage handle.
func (s Session) Authenticated() bool {
	return s.Handle != nil
}

type chatState struct {
	mu      sync.Mutex
	session Session
}

// Sessions is the process-wide chat-id-to-session registry. It owns
// per-chat serialization: Update runs its callback under the chat's
// lock, so read-modify-write cycles for one chat never interleave,
// while different chats proceed fully in parallel. Callers must not
// perform network I/O inside an Update callback.
type Sessions struct {
	mu    sync.Mutex
	chats map[int64]*chatState
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{chats: make(map[int64]*chatState)}
}

func (s *Sessions) state(chatID int64, create bool) *chatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.chats[chatID]
	if !ok && create {
		st = &chatState{}
		s.chats[chatID] = st
	}
	return st
}

// Get returns a snapshot of the chat's session. The second return is
// false when the chat has no session at all, which is distinct from an
// existing session that is not yet authenticated.
func (s *Sessions) Get(chatID int64) (Session, bool) {
	st := s.state(chatID, false)
	if st == nil {
		return Session{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshot(st.session), true
}

// Update runs fn under the chat's lock, creating the session entry if
// absent.
func (s *Sessions) Update(chatID int64, fn func(*Session)) {
	st := s.state(chatID, true)
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.session)
}

// UpdateExisting runs fn under the chat's lock only when the session
// entry already exists, and reports whether it did.
func (s *Sessions) UpdateExisting(chatID int64, fn func(*Session)) bool {
	st := s.state(chatID, false)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.session)
	return true
}

// Clear removes the chat's session and returns its final snapshot so
// the caller can release resources still referenced by it (deferred
// staging files).
func (s *Sessions) Clear(chatID int64) (Session, bool) {
	s.mu.Lock()
	st, ok := s.chats[chatID]
	if ok {
		delete(s.chats, chatID)
	}
	s.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return snapshot(st.session), true
}

func snapshot(sess Session) Session {
	out := sess
	out.Pending = append([]string(nil), sess.Pending...)
	out.Deferred = append([]DeferredJob(nil), sess.Deferred...)
	return out
}
