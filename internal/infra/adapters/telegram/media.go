package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-media-relay/internal/domain/model"
)

// attachmentFromMessage picks the first relayable file in msg: video, then animation, then document.
func attachmentFromMessage(msg *tgbotapi.Message) (model.AttachmentRef, bool) {
	switch {
	case msg.Video != nil:
		v := msg.Video
		return model.AttachmentRef{
			FileID:        v.FileID,
			SuggestedName: nameOr(v.FileName, v.FileUniqueID, v.MimeType),
			ContentType:   v.MimeType,
			Size:          int64(v.FileSize),
		}, true
	case msg.Animation != nil:
		a := msg.Animation
		return model.AttachmentRef{
			FileID:        a.FileID,
			SuggestedName: nameOr(a.FileName, a.FileUniqueID, a.MimeType),
			ContentType:   a.MimeType,
			Size:          int64(a.FileSize),
		}, true
	case msg.Document != nil:
		d := msg.Document
		return model.AttachmentRef{
			FileID:        d.FileID,
			SuggestedName: nameOr(d.FileName, d.FileUniqueID, d.MimeType),
			ContentType:   d.MimeType,
			Size:          int64(d.FileSize),
		}, true
	}
	return model.AttachmentRef{}, false
}

// nameOr keeps the sender's file name, or derives one from the unique id and MIME subtype.
func nameOr(name, uniqueID, mimeType string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if uniqueID == "" {
		return ""
	}
	ext := "mp4"
	if i := strings.IndexByte(mimeType, '/'); i >= 0 && i < len(mimeType)-1 {
		ext = strings.TrimPrefix(mimeType[i+1:], "x-")
	}
	return fmt.Sprintf("%s.%s", uniqueID, ext)
}
