package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/infra/metrics"
)

const DefaultChunkSize = 1 << 20

var ErrTooLarge = errors.New("download exceeds the configured size limit")

// HTTPDownloader streams a URL to disk in bounded chunks.
type HTTPDownloader struct {
	client    *http.Client
	chunkSize int
	maxBytes  int64
}

// NewHTTPDownloader uses client (http.DefaultClient when nil). maxBytes <= 0 disables the limit.
func NewHTTPDownloader(client *http.Client, chunkSize int, maxBytes int64) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &HTTPDownloader{client: client, chunkSize: chunkSize, maxBytes: maxBytes}
}

// Download describes what the server told us about the body.
type Download struct {
	Size        int64
	ContentType string
	FileName    string
}

// Download GETs rawURL into dest. Percent is received/content-length, or unknown (0)
// when the server does not send a length. A partially written dest is removed on error.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, dest string, progress *model.ProgressStream) (Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Download{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Download{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Download{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	total := resp.ContentLength
	if d.maxBytes > 0 && total > d.maxBytes {
		return Download{}, ErrTooLarge
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Download{}, fmt.Errorf("create file: %w", err)
	}

	written, copyErr := d.copy(out, resp.Body, total, progress)
	closeErr := out.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close file: %w", closeErr)
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return Download{}, copyErr
	}

	return Download{
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
		FileName:    fileNameFrom(resp.Header.Get("Content-Disposition"), resp.Request.URL),
	}, nil
}

func (d *HTTPDownloader) copy(dst io.Writer, src io.Reader, total int64, progress *model.ProgressStream) (int64, error) {
	buf := make([]byte, d.chunkSize)
	var written int64
	progress.Send(model.Progress{Done: 0, Total: total})
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write file: %w", werr)
			}
			written += int64(n)
			metrics.AddBytes("fetch", n)
			if d.maxBytes > 0 && written > d.maxBytes {
				return written, ErrTooLarge
			}
			progress.Send(model.Progress{Done: written, Total: total})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("read body: %w", rerr)
		}
	}
	if total > 0 && written != total {
		return written, fmt.Errorf("short body: got %d of %d bytes", written, total)
	}
	progress.Send(model.Progress{Done: written, Total: written})
	return written, nil
}

func fileNameFrom(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := cleanName(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u != nil {
		if name := cleanName(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return ""
}

func cleanName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func fileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return info.Size()
}
