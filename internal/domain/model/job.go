package model

import (
	"crypto/rand"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type InputKind string

const (
	InputRemoteURL  InputKind = "url"
	InputAttachment InputKind = "attachment"
)

// AttachmentRef points at a file that lives on the chat platform.
type AttachmentRef struct {
	FileID        string
	SuggestedName string
	ContentType   string
	Size          int64
}

// Input is a tagged union: exactly one of URL or Attachment is set, as reported by Kind.
type Input struct {
	Kind       InputKind
	URL        string
	Attachment AttachmentRef
}

func RemoteURL(u string) Input {
	return Input{Kind: InputRemoteURL, URL: u}
}

func Attachment(ref AttachmentRef) Input {
	return Input{Kind: InputAttachment, Attachment: ref}
}

// Source returns a short human description used in logs and history.
func (in Input) Source() string {
	switch in.Kind {
	case InputRemoteURL:
		return in.URL
	case InputAttachment:
		if in.Attachment.SuggestedName != "" {
			return in.Attachment.SuggestedName
		}
		return "tg:" + in.Attachment.FileID
	}
	return ""
}

func (in Input) Validate() error {
	switch in.Kind {
	case InputRemoteURL:
		u, err := url.Parse(strings.TrimSpace(in.URL))
		if err != nil || u.Host == "" {
			return errors.New("invalid url")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("url scheme must be http or https")
		}
		return nil
	case InputAttachment:
		if in.Attachment.FileID == "" {
			return errors.New("attachment file id is empty")
		}
		return nil
	}
	return errors.New("unknown input kind")
}

// Job is one unit of work: fetch a source then upload it.
type Job struct {
	ID          string
	RequesterID int64
	ChatID      int64
	Input       Input
	EnqueuedAt  time.Time
}

// NewJob stamps a sortable ID and the enqueue time. Replies go to the requester's private chat
// unless chatID is set.
func NewJob(requesterID, chatID int64, in Input) Job {
	if chatID == 0 {
		chatID = requesterID
	}
	return Job{
		ID:          NewJobID(),
		RequesterID: requesterID,
		ChatID:      chatID,
		Input:       in,
		EnqueuedAt:  time.Now(),
	}
}

func NewJobID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// FetchedFile is the outcome of a successful fetch.
type FetchedFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

type UploadRequest struct {
	LocalPath   string
	FileName    string
	ContentType string
	// Target is the per-requester destination (API identifier, key prefix or remote directory).
	Target string
}

// UploadResult carries the opaque token returned by the remote endpoint.
type UploadResult struct {
	Token string
}

func (r UploadResult) Empty() bool { return strings.TrimSpace(r.Token) == "" }

// MessageHandle identifies a status message that can be edited later.
type MessageHandle struct {
	ChatID    int64
	MessageID int
}

func (h MessageHandle) Valid() bool { return h.ChatID != 0 && h.MessageID != 0 }
