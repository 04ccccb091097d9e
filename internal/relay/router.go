package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ferryhq/ferry/internal/storage"
)

const (
	startText = "Welcome! To relay files to your storage account:\n" +
		"1. /credentials <access-key> <secret-key> - connect your account\n" +
		"2. /folders - pick a destination folder (optional)\n" +
		"3. Send any file and you get a share link back."
	credentialsSavedText = "Credentials verified. Send a file to upload it, or /folders to pick a destination."
	loggedOutText        = "Session cleared. Use /credentials to connect again."
	fallbackText         = "Send /credentials <access-key> <secret-key> to connect your storage account, then send me a file."
)

// Router dispatches incoming updates to authentication, folder
// selection, or the upload pipeline. It holds no state of its own;
// every failure is converted to a short reply at this boundary and
// never crosses into another chat.
type Router struct {
	logger    *slog.Logger
	sessions  *Sessions
	messenger Messenger
	backend   storage.Backend
	selector  *Selector
	pipeline  *Pipeline
}

// NewRouter creates the command router.
func NewRouter(log *slog.Logger, sessions *Sessions, messenger Messenger, backend storage.Backend, selector *Selector, pipeline *Pipeline) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		logger:    log.With(slog.String("component", "router")),
		sessions:  sessions,
		messenger: messenger,
		backend:   backend,
		selector:  selector,
		pipeline:  pipeline,
	}
}

// Handle routes one incoming update. It never returns an error;
// failures become chat replies.
func (r *Router) Handle(ctx context.Context, in Incoming) {
	text := strings.TrimSpace(in.Text)

	switch {
	case in.CallbackToken != "":
		r.handleChoice(ctx, in.ChatID, in.CallbackToken)
	case isCommand(text, "/start"):
		r.reply(ctx, in.ChatID, startText)
	case isCommand(text, "/credentials"):
		r.handleCredentials(ctx, in.ChatID, text)
	case isCommand(text, "/folders"):
		r.handleFolders(ctx, in.ChatID)
	case isCommand(text, "/logout"):
		r.handleLogout(ctx, in.ChatID)
	case r.looksLikeChoice(in.ChatID, text):
		// Checked before attachment classification so a numeric reply
		// is never treated as unsupported content.
		r.handleChoice(ctx, in.ChatID, text)
	case !in.Media.Empty():
		r.handleAttachment(ctx, in)
	default:
		r.reply(ctx, in.ChatID, fallbackText)
	}
}

func isCommand(text, cmd string) bool {
	if !strings.HasPrefix(text, cmd) {
		return false
	}
	rest := text[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '@'
}

// looksLikeChoice reports whether text has the shape of a reply to the
// chat's pending folder list: numeric, or equal to a listed name.
func (r *Router) looksLikeChoice(chatID int64, text string) bool {
	if text == "" {
		return false
	}
	sess, ok := r.sessions.Get(chatID)
	if !ok || len(sess.Pending) == 0 {
		return false
	}
	if _, err := strconv.Atoi(text); err == nil {
		return true
	}
	for _, name := range sess.Pending {
		if name == text {
			return true
		}
	}
	return false
}

func (r *Router) handleCredentials(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		r.replyErr(ctx, chatID, Errorf(KindInvalidCredentialsFormat, "expected 2 arguments, got %d", len(fields)-1), "")
		return
	}
	creds := storage.Credentials{AccessKey: fields[1], SecretKey: fields[2]}

	// Authentication is a network call; the session is only touched
	// once it comes back.
	handle, err := r.backend.Authenticate(ctx, creds)
	if err != nil {
		r.replyErr(ctx, chatID, Errorf(KindBackendUnavailable, "authenticate: %w", err), "")
		return
	}
	r.sessions.Update(chatID, func(sess *Session) {
		sess.Handle = handle
	})
	r.logger.Info("chat authenticated", slog.Int64("chat_id", chatID))
	r.reply(ctx, chatID, credentialsSavedText)
}

func (r *Router) handleFolders(ctx context.Context, chatID int64) {
	if err := r.selector.ListAndPresent(ctx, chatID); err != nil {
		r.replyErr(ctx, chatID, err, "")
	}
}

func (r *Router) handleLogout(ctx context.Context, chatID int64) {
	sess, ok := r.sessions.Clear(chatID)
	if ok {
		CleanupDeferred(sess.Deferred)
	}
	r.reply(ctx, chatID, loggedOutText)
}

func (r *Router) handleChoice(ctx context.Context, chatID int64, reply string) {
	name, err := r.selector.ResolveChoice(chatID, reply)
	if err != nil {
		r.replyErr(ctx, chatID, err, "")
		return
	}
	r.reply(ctx, chatID, fmt.Sprintf("Folder set to %q.", name))
	for _, failed := range r.pipeline.ResumeDeferred(ctx, chatID) {
		r.replyErr(ctx, chatID, failed.Err, failed.Attachment.FileName)
	}
}

func (r *Router) handleAttachment(ctx context.Context, in Incoming) {
	att, err := Classify(in.ChatID, in.ReceivedAt, in.Media)
	if err != nil {
		r.replyErr(ctx, in.ChatID, err, "")
		return
	}
	if err := r.pipeline.Submit(ctx, in.ChatID, att); err != nil {
		r.replyErr(ctx, in.ChatID, err, att.FileName)
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.messenger.SendText(ctx, chatID, text); err != nil {
		r.logger.Warn("send reply failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// replyErr converts a tagged failure into its fixed human reply.
// fileName, when known, names the affected attachment.
func (r *Router) replyErr(ctx context.Context, chatID int64, err error, fileName string) {
	kind := KindOf(err)
	r.logger.Info("request failed",
		slog.Int64("chat_id", chatID),
		slog.String("kind", kind.String()),
		slog.Any("error", err))
	r.reply(ctx, chatID, replyText(kind, fileName))
}

func replyText(kind Kind, fileName string) string {
	subject := "The file"
	if fileName != "" {
		subject = fileName
	}
	switch kind {
	case KindNotAuthenticated:
		return "Please set your storage credentials first with /credentials <access-key> <secret-key>."
	case KindInvalidCredentialsFormat:
		return "Invalid format. Use /credentials <access-key> <secret-key>."
	case KindBackendUnavailable:
		return "The storage service could not be reached. Please try again."
	case KindFetchFailed:
		return subject + " could not be downloaded from the chat. Please resend it."
	case KindStageWriteFailed:
		return subject + " could not be stored locally. Please resend it."
	case KindUploadFailed:
		return "Uploading " + subject + " failed; nothing was stored remotely. Please resend it."
	case KindLinkUnavailable:
		return subject + " was uploaded, but a share link could not be generated."
	case KindInvalidSelection:
		return "That folder choice is not valid. Send /folders to pick again."
	case KindUnsupportedAttachment:
		return "I can't handle that kind of message. Send a document, photo, video, or audio file."
	default:
		return "Something went wrong. Please try again."
	}
}
