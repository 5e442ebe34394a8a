package uploader

import (
	"io"
	"os"
	"path"
	"strings"

	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/infra/metrics"

	"github.com/google/uuid"
)

// progressReader reports bytes read from the local file. It never reports completion:
// the caller sends 100% only after the remote side acknowledged the upload.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	progress *model.ProgressStream
}

func newProgressReader(r io.Reader, total int64, progress *model.ProgressStream) *progressReader {
	return &progressReader{r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		metrics.AddBytes("upload", n)
		p.progress.Send(capped(p.read, p.total))
	}
	return n, err
}

// capped keeps in-flight progress at or below 99%.
func capped(done, total int64) model.Progress {
	if total <= 0 {
		return model.Progress{Done: 0, Total: total}
	}
	if limit := total * 99 / 100; done > limit {
		done = limit
	}
	return model.Progress{Done: done, Total: total}
}

func openLocal(p string) (*os.File, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// objectKey places name under prefix with a unique component so uploads never collide.
func objectKey(prefix, name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		name = "video.mp4"
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+"-"+name)
}
