package uploader

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/adapter"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

var _ adapter.RemoteUploader = (*SFTP)(nil)

// SFTP copies files to <base_dir>/<target>/ on a remote host. One connection per upload.
type SFTP struct {
	addr    string
	baseDir string
	ssh     *ssh.ClientConfig
	log     *zerolog.Logger
}

func NewSFTP(cfg config.SFTPConfig, log *zerolog.Logger) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, &domain.ConfigError{Key: "upload.sftp.host/user"}
	}

	var auths []ssh.AuthMethod
	switch {
	case cfg.PrivateKeyFile != "":
		keyBytes, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case cfg.Password != "":
		auths = append(auths, ssh.Password(cfg.Password))
	default:
		return nil, &domain.ConfigError{Key: "upload.sftp.password/private_key_file"}
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &SFTP{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		baseDir: cfg.BaseDir,
		ssh: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		},
		log: log,
	}, nil
}

func (u *SFTP) Name() string { return "sftp" }

func (u *SFTP) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	remote, err := u.upload(ctx, req, progress)
	if err != nil {
		return model.UploadResult{}, domain.NewUploadError(u.Name(), err)
	}
	return model.UploadResult{Token: remote}, nil
}

func (u *SFTP) upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (string, error) {
	f, size, err := openLocal(req.LocalPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", u.addr)
	if err != nil {
		return "", fmt.Errorf("dial tcp %s: %w", u.addr, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, u.addr, u.ssh)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", u.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	// Unblock the copy when the job context ends.
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	defer stop()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	remote := path.Join(u.baseDir, objectKey(req.Target, req.FileName))
	if err := mkdirAll(client, path.Dir(remote)); err != nil {
		return "", fmt.Errorf("ensure remote dir: %w", err)
	}

	progress.Send(model.Progress{Done: 0, Total: size})
	rf, err := client.Create(remote)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", remote, err)
	}
	if _, err := io.Copy(rf, newProgressReader(f, size, progress)); err != nil {
		rf.Close()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("copy to remote file %s: %w", remote, err)
	}
	if err := rf.Close(); err != nil {
		return "", fmt.Errorf("close remote file %s: %w", remote, err)
	}

	progress.Send(model.Progress{Done: size, Total: size})
	u.log.Debug().Str("addr", u.addr).Str("path", remote).Msg("sftp upload complete")
	return remote, nil
}

func mkdirAll(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range strings.Split(dir, "/") {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
