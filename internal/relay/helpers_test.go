package relay_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/ferryhq/ferry/internal/relay"
	"github.com/ferryhq/ferry/internal/storage"
)

type sentText struct {
	chatID int64
	text   string
}

type sentChoices struct {
	chatID  int64
	text    string
	choices []relay.Choice
}

// fakeMessenger records outbound traffic and serves attachment bytes
// from an in-memory map.
type fakeMessenger struct {
	mu       sync.Mutex
	texts    []sentText
	choices  []sentChoices
	payloads map[string][]byte
	fetchErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{payloads: map[string][]byte{}}
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{chatID: chatID, text: text})
	return nil
}

func (m *fakeMessenger) SendChoices(_ context.Context, chatID int64, text string, choices []relay.Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.choices = append(m.choices, sentChoices{chatID: chatID, text: text, choices: choices})
	return nil
}

func (m *fakeMessenger) FetchAttachment(_ context.Context, fileID string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	payload, ok := m.payloads[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file id %q", fileID)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *fakeMessenger) sentTexts() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentText(nil), m.texts...)
}

func (m *fakeMessenger) sentChoices() []sentChoices {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentChoices(nil), m.choices...)
}

func (m *fakeMessenger) lastText() string {
	texts := m.sentTexts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1].text
}

type uploadCall struct {
	name   string
	folder string
}

// fakeHandle is an in-memory storage account.
type fakeHandle struct {
	mu        sync.Mutex
	folders   []storage.Folder
	uploads   []uploadCall
	calls     int
	listErr   error
	createErr error
	uploadErr error
	linkErr   error
	// uploadGate, when set, blocks each Upload until released; used to
	// hold a job in flight. uploadEntered receives one value per
	// gated Upload as it starts waiting.
	uploadGate    chan struct{}
	uploadEntered chan struct{}
}

func (h *fakeHandle) ListFolders(_ context.Context) ([]storage.Folder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.listErr != nil {
		return nil, h.listErr
	}
	return append([]storage.Folder(nil), h.folders...), nil
}

func (h *fakeHandle) CreateFolder(_ context.Context, name string) (storage.Folder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.createErr != nil {
		return storage.Folder{}, h.createErr
	}
	folder := storage.Folder{Name: name, Key: name + "/"}
	h.folders = append(h.folders, folder)
	return folder, nil
}

func (h *fakeHandle) Upload(_ context.Context, localPath string, folder storage.Folder) (storage.RemoteFile, error) {
	if h.uploadGate != nil {
		if h.uploadEntered != nil {
			h.uploadEntered <- struct{}{}
		}
		<-h.uploadGate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.uploadErr != nil {
		return storage.RemoteFile{}, h.uploadErr
	}
	name := filepath.Base(localPath)
	h.uploads = append(h.uploads, uploadCall{name: name, folder: folder.Name})
	return storage.RemoteFile{Name: name, Key: folder.Key + name}, nil
}

func (h *fakeHandle) ShareLink(_ context.Context, file storage.RemoteFile) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.linkErr != nil {
		return "", h.linkErr
	}
	return "https://share.test/" + file.Key, nil
}

func (h *fakeHandle) uploadCalls() []uploadCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uploadCall(nil), h.uploads...)
}

func (h *fakeHandle) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fakeBackend struct {
	mu     sync.Mutex
	handle *fakeHandle
	err    error
	calls  int
}

func (b *fakeBackend) Authenticate(_ context.Context, _ storage.Credentials) (storage.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.handle, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// relayRig bundles a fully wired core over fakes.
type relayRig struct {
	sessions  *relay.Sessions
	messenger *fakeMessenger
	backend   *fakeBackend
	handle    *fakeHandle
	selector  *relay.Selector
	pipeline  *relay.Pipeline
	router    *relay.Router
}

func newRig(stagingDir string) *relayRig {
	handle := &fakeHandle{}
	backend := &fakeBackend{handle: handle}
	messenger := newFakeMessenger()
	sessions := relay.NewSessions()
	selector := relay.NewSelector(nil, sessions, messenger)
	pipeline := relay.NewPipeline(nil, sessions, messenger, selector, relay.PipelineConfig{
		StagingDir:    stagingDir,
		MaxFileBytes:  1 << 20,
		DefaultFolder: "uploads",
		MaxConcurrent: 4,
	})
	router := relay.NewRouter(nil, sessions, messenger, backend, selector, pipeline)
	return &relayRig{
		sessions:  sessions,
		messenger: messenger,
		backend:   backend,
		handle:    handle,
		selector:  selector,
		pipeline:  pipeline,
		router:    router,
	}
}

func (r *relayRig) authenticate(ctx context.Context, chatID int64) {
	r.router.Handle(ctx, relay.Incoming{ChatID: chatID, Text: "/credentials AKID secret"})
}
