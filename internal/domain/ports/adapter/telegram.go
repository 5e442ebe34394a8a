// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"

	"telegram-media-relay/internal/domain/model"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// StatusSink is where human-readable progress and outcomes are published.
// Edit must accept repeated edits of the same message.
type StatusSink interface {
	Send(ctx context.Context, chatID int64, text string) (model.MessageHandle, error)
	Edit(ctx context.Context, h model.MessageHandle, text string) error
}

// AttachmentRetriever downloads a chat-native attachment into dest, reporting progress.
type AttachmentRetriever interface {
	RetrieveAttachment(ctx context.Context, ref model.AttachmentRef, dest string, progress *model.ProgressStream) error
}

// Localizer resolves a user-facing string key for a requester.
type Localizer interface {
	T(ctx context.Context, requesterID int64, key string, args ...interface{}) string
}
