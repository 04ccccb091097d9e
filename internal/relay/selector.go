package relay

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ferryhq/ferry/internal/storage"
)

const (
	choosePromptText   = "Choose a destination folder:"
	noFoldersFoundText = "No folders found in your storage account. Send a file to upload it to the default folder, or it will be created for you."
)

// Selector lists remote folders, presents them as an inline choice,
// and resolves a chat's reply into a folder selection.
type Selector struct {
	logger    *slog.Logger
	sessions  *Sessions
	messenger Messenger
}

// NewSelector creates a folder selector.
func NewSelector(log *slog.Logger, sessions *Sessions, messenger Messenger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		logger:    log.With(slog.String("component", "selector")),
		sessions:  sessions,
		messenger: messenger,
	}
}

// ListAndPresent fetches the chat's folder listing and shows it as one
// inline button per folder, recording the list as the chat's pending
// choice set. An empty listing sends a notice and leaves the pending
// set untouched.
func (s *Selector) ListAndPresent(ctx context.Context, chatID int64) error {
	sess, ok := s.sessions.Get(chatID)
	if !ok || !sess.Authenticated() {
		return Errorf(KindNotAuthenticated, "chat %d has no authenticated session", chatID)
	}

	folders, err := sess.Handle.ListFolders(ctx)
	if err != nil {
		return Errorf(KindBackendUnavailable, "list folders: %w", err)
	}
	names := storage.FolderNames(folders)

	if len(names) == 0 {
		// No choices were shown, so this does not count as a folder
		// prompt; uploads keep falling back to the default folder.
		return s.messenger.SendText(ctx, chatID, noFoldersFoundText)
	}

	s.sessions.UpdateExisting(chatID, func(sess *Session) {
		sess.Pending = append([]string(nil), names...)
		sess.Prompted = true
	})

	choices := make([]Choice, 0, len(names))
	for i, name := range names {
		choices = append(choices, Choice{
			Label: strconv.Itoa(i+1) + ". " + name,
			Token: name,
		})
	}
	s.logger.Debug("presenting folder choices", slog.Int64("chat_id", chatID), slog.Int("count", len(choices)))
	return s.messenger.SendChoices(ctx, chatID, choosePromptText, choices)
}

// ResolveChoice resolves a reply against the chat's pending folder
// list. The reply is either a 1-based ordinal or a folder-name token
// from an inline button. On success the pending list is cleared and
// the selection recorded; out-of-range ordinals, unknown tokens, and a
// missing pending list fail with KindInvalidSelection and leave the
// session's selection unchanged.
func (s *Selector) ResolveChoice(chatID int64, reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	var (
		chosen  string
		resErr  error
		existed bool
	)
	existed = s.sessions.UpdateExisting(chatID, func(sess *Session) {
		if len(sess.Pending) == 0 {
			resErr = Errorf(KindInvalidSelection, "no folder list is pending for chat %d", chatID)
			return
		}
		name, ok := matchChoice(sess.Pending, reply)
		if !ok {
			resErr = Errorf(KindInvalidSelection, "reply %q does not match the pending folder list", reply)
			return
		}
		sess.SelectedFolder = name
		sess.Pending = nil
		chosen = name
	})
	if !existed {
		return "", Errorf(KindInvalidSelection, "no folder list is pending for chat %d", chatID)
	}
	if resErr != nil {
		return "", resErr
	}
	s.logger.Info("folder selected", slog.Int64("chat_id", chatID), slog.String("folder", chosen))
	return chosen, nil
}

// matchChoice resolves a reply against the pending list: a numeric
// ordinal indexes it 1-based, anything else must equal a listed name.
func matchChoice(pending []string, reply string) (string, bool) {
	if n, err := strconv.Atoi(reply); err == nil {
		if n < 1 || n > len(pending) {
			return "", false
		}
		return pending[n-1], true
	}
	for _, name := range pending {
		if name == reply {
			return name, true
		}
	}
	return "", false
}

// ResolveOrCreate maps a folder name to its backend handle by exact
// match against a fresh listing, creating the folder when absent. With
// an unchanged remote folder set it is idempotent: the same name
// yields the same handle and no duplicate is created.
func (s *Selector) ResolveOrCreate(ctx context.Context, handle storage.Handle, name string) (storage.Folder, error) {
	folders, err := handle.ListFolders(ctx)
	if err != nil {
		return storage.Folder{}, Errorf(KindBackendUnavailable, "list folders: %w", err)
	}
	for _, f := range folders {
		if f.Name == name {
			return f, nil
		}
	}
	folder, err := handle.CreateFolder(ctx, name)
	if err != nil {
		return storage.Folder{}, Errorf(KindBackendUnavailable, "create folder %q: %w", name, err)
	}
	s.logger.Info("folder created", slog.String("folder", name))
	return folder, nil
}
