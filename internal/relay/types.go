// Package relay is the per-chat coordinator between the messaging
// platform and the storage backend: it tracks each chat's
// authentication and folder-selection state, classifies incoming
// attachments, and sequences the download, upload, share-link, and
// cleanup pipeline.
package relay

import (
	"context"
	"io"
	"time"
)

// MediaKind is the content kind of an incoming attachment.
type MediaKind string

const (
	MediaDocument  MediaKind = "document"
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
)

// FileRef points at a payload hosted by the messaging platform.
type FileRef struct {
	FileID   string
	FileName string
	Mime     string
	Size     int64
}

// PhotoRef is one resolution variant of a photo payload.
type PhotoRef struct {
	FileID string
	Width  int
	Height int
	Size   int64
}

// Media carries every candidate payload attached to one message. A
// message may set several fields at once; Classify applies the
// precedence order.
type Media struct {
	Document  *FileRef
	Photos    []PhotoRef
	Video     *FileRef
	Audio     *FileRef
	Voice     *FileRef
	Sticker   *FileRef
	Animation *FileRef
}

// Empty reports whether the message carried no candidate payload.
func (m Media) Empty() bool {
	return m.Document == nil &&
		len(m.Photos) == 0 &&
		m.Video == nil &&
		m.Audio == nil &&
		m.Voice == nil &&
		m.Sticker == nil &&
		m.Animation == nil
}

// Incoming is one parsed platform update, already freed of transport
// details.
type Incoming struct {
	ChatID    int64
	MessageID int
	Text      string
	Media     Media
	// CallbackToken is set when the update is an inline-button press;
	// it carries the button's opaque token.
	CallbackToken string
	ReceivedAt    time.Time
}

// Attachment is the classifier output: a fetchable payload with a
// filesystem-safe display name.
type Attachment struct {
	FileID   string
	FileName string
	Kind     MediaKind
	Size     int64
}

// Choice is one selectable option presented to a chat.
type Choice struct {
	Label string
	Token string
}

// Messenger is the messaging-platform capability consumed by the
// relay core. Implementations perform blocking network I/O.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) error
	// FetchAttachment streams the payload identified by fileID. The
	// caller must close the reader.
	FetchAttachment(ctx context.Context, fileID string) (io.ReadCloser, error)
}
