package telegram

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ferryhq/ferry/internal/relay"
)

// ToIncoming converts a raw Bot API update into the relay's
// platform-neutral form. callbackID is non-empty for inline-button
// presses and must be acknowledged by the transport. ok is false for
// update shapes the relay does not consume.
func ToIncoming(update tgbotapi.Update) (in relay.Incoming, callbackID string, ok bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return relay.Incoming{}, "", false
		}
		return relay.Incoming{
			ChatID:        cb.Message.Chat.ID,
			MessageID:     cb.Message.MessageID,
			CallbackToken: strings.TrimSpace(cb.Data),
			ReceivedAt:    time.Now().UTC(),
		}, cb.ID, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return relay.Incoming{}, "", false
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	return relay.Incoming{
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		Text:       text,
		Media:      collectMedia(msg),
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}, "", true
}

func collectMedia(msg *tgbotapi.Message) relay.Media {
	var m relay.Media
	if msg.Document != nil {
		m.Document = &relay.FileRef{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			Mime:     msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
		}
	}
	for _, photo := range msg.Photo {
		m.Photos = append(m.Photos, relay.PhotoRef{
			FileID: photo.FileID,
			Width:  photo.Width,
			Height: photo.Height,
			Size:   int64(photo.FileSize),
		})
	}
	if msg.Video != nil {
		m.Video = &relay.FileRef{
			FileID:   msg.Video.FileID,
			FileName: msg.Video.FileName,
			Mime:     msg.Video.MimeType,
			Size:     int64(msg.Video.FileSize),
		}
	}
	if msg.Audio != nil {
		m.Audio = &relay.FileRef{
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			Mime:     msg.Audio.MimeType,
			Size:     int64(msg.Audio.FileSize),
		}
	}
	if msg.Voice != nil {
		m.Voice = &relay.FileRef{
			FileID: msg.Voice.FileID,
			Mime:   msg.Voice.MimeType,
			Size:   int64(msg.Voice.FileSize),
		}
	}
	if msg.Sticker != nil {
		m.Sticker = &relay.FileRef{
			FileID: msg.Sticker.FileID,
			Size:   int64(msg.Sticker.FileSize),
		}
	}
	if msg.Animation != nil {
		m.Animation = &relay.FileRef{
			FileID:   msg.Animation.FileID,
			FileName: msg.Animation.FileName,
			Mime:     msg.Animation.MimeType,
			Size:     int64(msg.Animation.FileSize),
		}
	}
	return m
}
