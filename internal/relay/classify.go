package relay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Classify inspects a message's candidate payloads and extracts the
// one attachment to relay. Precedence when several payload types are
// present: document > photo > video > audio > voice > sticker >
// animation; for photos the largest variant wins. Returns a
// KindUnsupportedAttachment error for text-only or unrecognized
// content.
func Classify(chatID int64, receivedAt time.Time, m Media) (Attachment, error) {
	switch {
	case m.Document != nil:
		return fromRef(MediaDocument, m.Document, chatID, receivedAt), nil
	case len(m.Photos) > 0:
		photo := pickPhoto(m.Photos)
		return Attachment{
			FileID:   photo.FileID,
			FileName: synthesizeName(MediaPhoto, chatID, receivedAt),
			Kind:     MediaPhoto,
			Size:     photo.Size,
		}, nil
	case m.Video != nil:
		return fromRef(MediaVideo, m.Video, chatID, receivedAt), nil
	case m.Audio != nil:
		return fromRef(MediaAudio, m.Audio, chatID, receivedAt), nil
	case m.Voice != nil:
		return fromRef(MediaVoice, m.Voice, chatID, receivedAt), nil
	case m.Sticker != nil:
		return fromRef(MediaSticker, m.Sticker, chatID, receivedAt), nil
	case m.Animation != nil:
		return fromRef(MediaAnimation, m.Animation, chatID, receivedAt), nil
	default:
		return Attachment{}, Errorf(KindUnsupportedAttachment, "message carries no usable payload")
	}
}

func fromRef(kind MediaKind, ref *FileRef, chatID int64, receivedAt time.Time) Attachment {
	name := SafeFileName(ref.FileName)
	if name == "" {
		name = synthesizeName(kind, chatID, receivedAt)
	}
	return Attachment{
		FileID:   ref.FileID,
		FileName: name,
		Kind:     kind,
		Size:     ref.Size,
	}
}

// pickPhoto returns the highest-resolution variant, preferring the
// reported file size and falling back to pixel area.
func pickPhoto(items []PhotoRef) PhotoRef {
	best := items[0]
	for _, item := range items[1:] {
		if item.Size > best.Size {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

func synthesizeName(kind MediaKind, chatID int64, receivedAt time.Time) string {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return fmt.Sprintf("%s_%d_%d%s", kind, receivedAt.Unix(), chatID, extensionFor(kind))
}

func extensionFor(kind MediaKind) string {
	switch kind {
	case MediaPhoto:
		return ".jpg"
	case MediaVideo:
		return ".mp4"
	case MediaAudio:
		return ".mp3"
	case MediaVoice:
		return ".ogg"
	case MediaSticker:
		return ".webp"
	case MediaAnimation:
		return ".gif"
	default:
		return ".bin"
	}
}

// SafeFileName reduces a platform-provided filename to a non-empty,
// filesystem-safe base name, or "" when nothing usable remains.
func SafeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case r == '/', r == '\\', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		default:
			return r
		}
	}, name)
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" || cleaned == "_" {
		return ""
	}
	return cleaned
}
