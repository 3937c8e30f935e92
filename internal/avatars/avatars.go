// Package avatars mirrors user avatar images from the groupware into an
// S3-compatible bucket, so dashboards can serve them without hitting the
// groupware on every render.
package avatars

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Mirror fetches avatars over HTTP and stores them as objects named
// <username>.jpg.
type Mirror struct {
	s3       *minio.Client
	bucket   string
	baseURL  string
	username string
	password string
	refresh  time.Duration
	http     *http.Client
	log      zerolog.Logger
}

// Config carries the connection settings for the mirror.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string

	BaseURL       string
	AdminUsername string
	AdminPassword string
	// Refresh is how old a mirrored avatar may get before it is
	// fetched again.
	Refresh time.Duration
}

// NewMirror connects to the object store and ensures the bucket exists.
func NewMirror(ctx context.Context, cfg Config, log zerolog.Logger) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = 24 * time.Hour
	}

	return &Mirror{
		s3:       client,
		bucket:   cfg.Bucket,
		baseURL:  cfg.BaseURL,
		username: cfg.AdminUsername,
		password: cfg.AdminPassword,
		refresh:  refresh,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("component", "avatars").Logger(),
	}, nil
}

// MirrorAll refreshes the avatars of all given users. Per-user failures
// are logged and the loop continues.
func (m *Mirror) MirrorAll(ctx context.Context, usernames []string) {
	for _, username := range usernames {
		if err := m.MirrorOne(ctx, username); err != nil {
			m.log.Warn().Err(err).Str("user", username).Msg("avatar mirror failed")
		}
	}
}

// MirrorOne fetches and stores one user's avatar unless the mirrored
// copy is still fresh.
func (m *Mirror) MirrorOne(ctx context.Context, username string) error {
	object := username + ".jpg"

	stat, err := m.s3.StatObject(ctx, m.bucket, object, minio.StatObjectOptions{})
	if err == nil && time.Since(stat.LastModified) < m.refresh {
		return nil
	}

	data, contentType, err := m.fetch(ctx, username)
	if err != nil {
		return err
	}

	_, err = m.s3.PutObject(ctx, m.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("store avatar for %s: %w", username, err)
	}
	m.log.Debug().Str("user", username).Int("bytes", len(data)).Msg("avatar mirrored")
	return nil
}

func (m *Mirror) fetch(ctx context.Context, username string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("%s/index.php/avatar/%s/200", m.baseURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build avatar request: %w", err)
	}
	req.SetBasicAuth(m.username, m.password)
	req.Header.Set("OCS-APIRequest", "true")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch avatar for %s: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("avatar for %s: unexpected status %d", username, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read avatar for %s: %w", username, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
