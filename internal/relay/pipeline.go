package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ferryhq/ferry/internal/storage"
)

// PipelineConfig carries the upload pipeline settings.
type PipelineConfig struct {
	// StagingDir is where attachments are spooled before upload.
	// Empty means the OS temp directory.
	StagingDir string
	// MaxFileBytes rejects attachments larger than this during
	// staging.
	MaxFileBytes int64
	// DefaultFolder receives uploads from chats that have never been
	// shown a folder prompt.
	DefaultFolder string
	// MaxConcurrent bounds simultaneously running jobs process-wide.
	MaxConcurrent int64
}

// Pipeline sequences one upload job: fetch bytes from the messaging
// platform, stage them locally, upload to the resolved folder, obtain
// a share link, and remove the staged copy on every exit path.
type Pipeline struct {
	logger    *slog.Logger
	sessions  *Sessions
	messenger Messenger
	selector  *Selector
	cfg       PipelineConfig
	jobs      *semaphore.Weighted
}

// NewPipeline creates an upload pipeline.
func NewPipeline(log *slog.Logger, sessions *Sessions, messenger Messenger, selector *Selector, cfg PipelineConfig) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Pipeline{
		logger:    log.With(slog.String("component", "pipeline")),
		sessions:  sessions,
		messenger: messenger,
		selector:  selector,
		cfg:       cfg,
		jobs:      semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// stagedFile is an attachment spooled to the local filesystem. Each
// job gets its own directory so identical filenames from concurrent
// jobs never collide.
type stagedFile struct {
	dir  string
	path string
}

func (f stagedFile) cleanup() {
	_ = os.RemoveAll(f.dir)
}

// Submit runs the pipeline for a classified attachment. When the chat
// has been shown a folder prompt but has not selected yet, the job is
// staged and parked on the session; ResumeDeferred picks it up once a
// selection lands. A non-nil return is always a tagged *Error for the
// router to convert into a reply; the share link itself is sent from
// here on success.
func (p *Pipeline) Submit(ctx context.Context, chatID int64, att Attachment) error {
	sess, ok := p.sessions.Get(chatID)
	if !ok || !sess.Authenticated() {
		return Errorf(KindNotAuthenticated, "chat %d has no authenticated session", chatID)
	}

	if err := p.jobs.Acquire(ctx, 1); err != nil {
		return Errorf(KindFetchFailed, "acquire job slot: %w", err)
	}
	defer p.jobs.Release(1)

	staged, err := p.stage(ctx, att)
	if err != nil {
		return err
	}

	// Pin the destination now, under the chat's lock, so a selection
	// arriving mid-flight never redirects this job.
	var (
		target   string
		handle   storage.Handle
		deferred bool
	)
	p.sessions.UpdateExisting(chatID, func(sess *Session) {
		handle = sess.Handle
		switch {
		case sess.SelectedFolder != "":
			target = sess.SelectedFolder
		case !sess.Prompted:
			target = p.cfg.DefaultFolder
		default:
			sess.Deferred = append(sess.Deferred, DeferredJob{
				Attachment: att,
				StagingDir: staged.dir,
				LocalPath:  staged.path,
			})
			deferred = true
		}
	})
	if handle == nil {
		staged.cleanup()
		return Errorf(KindNotAuthenticated, "chat %d lost its session", chatID)
	}
	if deferred {
		p.logger.Info("upload deferred until folder selection",
			slog.Int64("chat_id", chatID),
			slog.String("file", att.FileName))
		if err := p.messenger.SendText(ctx, chatID, "Pick a folder to finish uploading "+att.FileName+"."); err != nil {
			p.logger.Warn("send deferral notice failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
		}
		return p.selector.ListAndPresent(ctx, chatID)
	}

	return p.finish(ctx, chatID, handle, target, staged, att)
}

// JobResult pairs a failed deferred job with its tagged error so the
// router can name the file in its reply.
type JobResult struct {
	Attachment Attachment
	Err        error
}

// ResumeDeferred drains the chat's parked jobs and runs each to
// completion against the now-selected folder. Successes report their
// own share link; only failures are returned.
func (p *Pipeline) ResumeDeferred(ctx context.Context, chatID int64) []JobResult {
	var (
		jobs   []DeferredJob
		handle storage.Handle
		target string
	)
	p.sessions.UpdateExisting(chatID, func(sess *Session) {
		jobs = sess.Deferred
		sess.Deferred = nil
		handle = sess.Handle
		target = sess.SelectedFolder
	})
	if len(jobs) == 0 {
		return nil
	}
	if handle == nil || target == "" {
		CleanupDeferred(jobs)
		results := make([]JobResult, 0, len(jobs))
		for _, job := range jobs {
			results = append(results, JobResult{
				Attachment: job.Attachment,
				Err:        Errorf(KindNotAuthenticated, "chat %d lost its session", chatID),
			})
		}
		return results
	}

	var failures []JobResult
	for _, job := range jobs {
		if err := p.jobs.Acquire(ctx, 1); err != nil {
			job.cleanup()
			failures = append(failures, JobResult{
				Attachment: job.Attachment,
				Err:        Errorf(KindUploadFailed, "acquire job slot: %w", err),
			})
			continue
		}
		err := p.finish(ctx, chatID, handle, target, stagedFile{dir: job.StagingDir, path: job.LocalPath}, job.Attachment)
		p.jobs.Release(1)
		if err != nil {
			failures = append(failures, JobResult{Attachment: job.Attachment, Err: err})
		}
	}
	return failures
}

func (j DeferredJob) cleanup() {
	_ = os.RemoveAll(j.StagingDir)
}

// CleanupDeferred removes the staging directories referenced by parked
// jobs, typically after their session was cleared.
func CleanupDeferred(jobs []DeferredJob) {
	for _, job := range jobs {
		job.cleanup()
	}
}

// stage fetches the attachment bytes and spools them into a fresh
// per-job staging directory under the resolved filename.
func (p *Pipeline) stage(ctx context.Context, att Attachment) (stagedFile, error) {
	body, err := p.messenger.FetchAttachment(ctx, att.FileID)
	if err != nil {
		return stagedFile{}, Errorf(KindFetchFailed, "fetch %s: %w", att.FileID, err)
	}
	defer func() {
		_ = body.Close()
	}()

	dir := filepath.Join(p.cfg.StagingDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return stagedFile{}, Errorf(KindStageWriteFailed, "create staging dir: %w", err)
	}
	staged := stagedFile{dir: dir, path: filepath.Join(dir, att.FileName)}

	out, err := os.Create(staged.path)
	if err != nil {
		staged.cleanup()
		return stagedFile{}, Errorf(KindStageWriteFailed, "create staging file: %w", err)
	}
	limited := io.Reader(body)
	if p.cfg.MaxFileBytes > 0 {
		// One extra byte so an exactly-at-limit file is distinguishable
		// from a truncated oversize one.
		limited = io.LimitReader(body, p.cfg.MaxFileBytes+1)
	}
	written, err := io.Copy(out, limited)
	closeErr := out.Close()
	switch {
	case err != nil:
		staged.cleanup()
		return stagedFile{}, Errorf(KindStageWriteFailed, "write staging file: %w", err)
	case closeErr != nil:
		staged.cleanup()
		return stagedFile{}, Errorf(KindStageWriteFailed, "close staging file: %w", closeErr)
	case p.cfg.MaxFileBytes > 0 && written > p.cfg.MaxFileBytes:
		staged.cleanup()
		return stagedFile{}, Errorf(KindStageWriteFailed, "attachment exceeds %d bytes", p.cfg.MaxFileBytes)
	}

	p.logger.Debug("attachment staged",
		slog.String("file", att.FileName),
		slog.Int64("bytes", written))
	return staged, nil
}

// finish runs the Uploaded, Linked, and Reported stages against a
// pinned folder and removes the staged copy on every exit path.
func (p *Pipeline) finish(ctx context.Context, chatID int64, handle storage.Handle, folderName string, staged stagedFile, att Attachment) error {
	defer staged.cleanup()

	folder, err := p.selector.ResolveOrCreate(ctx, handle, folderName)
	if err != nil {
		return err
	}

	remote, err := handle.Upload(ctx, staged.path, folder)
	if err != nil {
		return Errorf(KindUploadFailed, "upload %s to %q: %w", att.FileName, folderName, err)
	}

	url, err := handle.ShareLink(ctx, remote)
	if err != nil {
		// The remote copy exists; this must surface as a partial
		// success, never as an upload failure.
		return Errorf(KindLinkUnavailable, "share link for %s: %w", att.FileName, err)
	}

	p.logger.Info("upload complete",
		slog.Int64("chat_id", chatID),
		slog.String("file", att.FileName),
		slog.String("folder", folderName))
	return p.messenger.SendText(ctx, chatID, fmt.Sprintf("Uploaded %s to %q. Link: %s", att.FileName, folderName, url))
}
