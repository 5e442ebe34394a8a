package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const maxResponseBody = 1 << 20

var _ adapter.RemoteUploader = (*Hydrax)(nil)

// Hydrax posts the file as multipart form field "file" to <base>/<api id>.
type Hydrax struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewHydrax(baseURL string, client *http.Client, log *zerolog.Logger) *Hydrax {
	if client == nil {
		client = http.DefaultClient
	}
	return &Hydrax{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

func (h *Hydrax) Name() string { return "hydrax" }

func (h *Hydrax) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	if strings.TrimSpace(req.Target) == "" {
		return model.UploadResult{}, domain.NewUploadError(h.Name(), &domain.ConfigError{Key: "hydrax api id"})
	}
	f, size, err := openLocal(req.LocalPath)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(h.Name(), err)
	}
	defer f.Close()

	progress.Send(model.Progress{Done: 0, Total: size})
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writeMultipart(mw, req, newProgressReader(f, size, progress)))
	}()
	// the writer reports progress, so it must be gone before Upload returns
	stopWriter := func(err error) {
		pr.CloseWithError(err)
		<-written
	}

	endpoint := h.baseURL + "/" + url.PathEscape(req.Target)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		stopWriter(err)
		return model.UploadResult{}, domain.NewUploadError(h.Name(), err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(httpReq)
	if err != nil {
		stopWriter(err)
		return model.UploadResult{}, domain.NewUploadError(h.Name(), err)
	}
	defer resp.Body.Close()
	stopWriter(nil)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(h.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.UploadResult{}, domain.NewUploadError(h.Name(), fmt.Errorf("unexpected status %s", resp.Status))
	}
	token, err := parseToken(body)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(h.Name(), err)
	}

	progress.Send(model.Progress{Done: size, Total: size})
	h.log.Debug().Str("file", req.FileName).Int64("size", size).Str("token", token).Msg("hydrax upload accepted")
	return model.UploadResult{Token: token}, nil
}

func writeMultipart(mw *multipart.Writer, req model.UploadRequest, body io.Reader) error {
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FileName))
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// parseToken reads slug, url or id (in that order) from a JSON object.
func parseToken(body []byte) (string, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("empty response")
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, key := range []string{"slug", "url", "id"} {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, nil
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return "", fmt.Errorf("response carries no identifier")
}
