package fetcher

import (
	"context"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

const (
	DefaultFileName    = "video.mp4"
	DefaultContentType = "video/mp4"
)

var _ adapter.SourceFetcher = (*SourceFetcher)(nil)

// SourceFetcher resolves job inputs into local files.
type SourceFetcher struct {
	http        *HTTPDownloader
	attachments adapter.AttachmentRetriever
	timeout     time.Duration
	log         *zerolog.Logger
}

// NewSourceFetcher wires the URL and attachment paths. attachments may be nil, in which case
// attachment jobs fail with a ConfigError.
func NewSourceFetcher(http *HTTPDownloader, attachments adapter.AttachmentRetriever, timeout time.Duration, log *zerolog.Logger) *SourceFetcher {
	if http == nil {
		http = NewHTTPDownloader(nil, DefaultChunkSize, 0)
	}
	return &SourceFetcher{http: http, attachments: attachments, timeout: timeout, log: log}
}

func (f *SourceFetcher) Fetch(ctx context.Context, in model.Input, dest string, progress *model.ProgressStream) (model.FetchedFile, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	switch in.Kind {
	case model.InputRemoteURL:
		return f.fetchURL(ctx, in.URL, dest, progress)
	case model.InputAttachment:
		return f.fetchAttachment(ctx, in.Attachment, dest, progress)
	}
	return model.FetchedFile{}, domain.NewFetchError(in.Source(), domain.ErrInvalidArgument)
}

func (f *SourceFetcher) fetchURL(ctx context.Context, rawURL, dest string, progress *model.ProgressStream) (model.FetchedFile, error) {
	dl, err := f.http.Download(ctx, rawURL, dest, progress)
	if err != nil {
		return model.FetchedFile{}, domain.NewFetchError(rawURL, err)
	}
	name := dl.FileName
	if name == "" {
		name = DefaultFileName
	}
	out := model.FetchedFile{
		Path:        dest,
		Name:        name,
		ContentType: ResolveContentType(dl.ContentType, name, dest),
		Size:        dl.Size,
	}
	f.log.Debug().Str("url", rawURL).Str("name", out.Name).Str("content_type", out.ContentType).Int64("size", out.Size).Msg("url fetched")
	return out, nil
}

func (f *SourceFetcher) fetchAttachment(ctx context.Context, ref model.AttachmentRef, dest string, progress *model.ProgressStream) (model.FetchedFile, error) {
	source := "tg:" + ref.FileID
	if f.attachments == nil {
		return model.FetchedFile{}, domain.NewFetchError(source, &domain.ConfigError{Key: "attachment retriever"})
	}
	if err := f.attachments.RetrieveAttachment(ctx, ref, dest, progress); err != nil {
		return model.FetchedFile{}, domain.NewFetchError(source, err)
	}

	name := strings.TrimSpace(ref.SuggestedName)
	if name == "" {
		name = DefaultFileName
	}
	out := model.FetchedFile{
		Path:        dest,
		Name:        name,
		ContentType: ResolveContentType(ref.ContentType, name, dest),
		Size:        ref.Size,
	}
	if out.Size <= 0 {
		out.Size = fileSize(dest)
	}
	return out, nil
}

// ResolveContentType prefers a specific declared type, then the file extension,
// then content sniffing, and finally falls back to video/mp4.
func ResolveContentType(declared, name, path string) string {
	if ct := baseType(declared); ct != "" && !generic(ct) {
		return ct
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := baseType(mime.TypeByExtension(ext)); ct != "" {
		return ct
	}
	if path != "" {
		if m, err := mimetype.DetectFile(path); err == nil && m != nil {
			if ct := baseType(m.String()); ct != "" && !generic(ct) && !strings.HasPrefix(ct, "text/plain") {
				return ct
			}
		}
	}
	return DefaultContentType
}

// videoTypes covers containers the system mime table often lacks.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
}

func baseType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

func generic(ct string) bool {
	switch ct {
	case "application/octet-stream", "binary/octet-stream", "application/binary", "application/unknown":
		return true
	}
	return false
}
