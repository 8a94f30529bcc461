// Package storage publishes a finished assembly's output to wherever a
// channel's Channel.StorageStrategy says it belongs, once a task
// reaches StatusUploading (spec.md §3, §4.6 step 7). Grounded on the
// teacher's internal/platform/gcp/bucket.go bucketService: a
// *storage.Client built once at construction, content-type inference
// by file extension, and a public URL derived from either a CDN domain
// or the default storage.googleapis.com host.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// Strategy publishes one assembled output file and returns the
// reference a board update should carry (a local path or a public
// URL).
type Strategy interface {
	Publish(ctx context.Context, channelID, taskID, localPath string) (string, error)
}

// Resolve returns the Strategy named by a channel's StorageStrategy
// field. An empty or unrecognized name falls back to "local" rather
// than erroring, since a missing storage strategy shouldn't block a
// task that otherwise completed every stage.
func Resolve(name string, log *logger.Logger) Strategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gcs":
		gcs, err := newGCSStrategy(log)
		if err != nil {
			log.Warn("gcs storage strategy unavailable, falling back to local", "error", err)
			return newLocalStrategy(log)
		}
		return gcs
	default:
		return newLocalStrategy(log)
	}
}

type localStrategy struct {
	log  *logger.Logger
	root string
}

func newLocalStrategy(log *logger.Logger) *localStrategy {
	return &localStrategy{
		log:  log.With("component", "LocalStorage"),
		root: envutil.String("LOCAL_PUBLISH_ROOT", "/var/lib/pipeline/published"),
	}
}

// Publish copies the assembled output into a channel/task-scoped
// directory under root and returns that path; it does not remove the
// Stage Driver's working copy, matching the teacher's ReplaceFile
// delete-then-upload ordering so a failed copy never leaves a task
// without any output.
func (l *localStrategy) Publish(ctx context.Context, channelID, taskID, localPath string) (string, error) {
	dir := filepath.Join(l.root, channelID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir publish dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(localPath))

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open assembled output: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create published file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("copy assembled output: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close published file: %w", err)
	}
	l.log.Info("published output locally", "channel_id", channelID, "task_id", taskID, "path", dst)
	return dst, nil
}

type gcsStrategy struct {
	log           *logger.Logger
	client        *storage.Client
	bucket        string
	cdnDomain     string
	publicBaseURL string
}

func newGCSStrategy(log *logger.Logger) (*gcsStrategy, error) {
	bucket := envutil.String("OUTPUT_GCS_BUCKET_NAME", "")
	if bucket == "" {
		return nil, fmt.Errorf("missing env var OUTPUT_GCS_BUCKET_NAME")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &gcsStrategy{
		log:           log.With("component", "GCSStorage"),
		client:        client,
		bucket:        bucket,
		cdnDomain:     envutil.String("OUTPUT_CDN_DOMAIN", ""),
		publicBaseURL: envutil.String("OUTPUT_PUBLIC_BASE_URL", ""),
	}, nil
}

func (g *gcsStrategy) Publish(ctx context.Context, channelID, taskID, localPath string) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", channelID, taskID, filepath.Base(localPath))

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open assembled output: %w", err)
	}
	defer f.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(uploadCtx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer: %w", err)
	}

	url := g.publicURL(key)
	g.log.Info("published output to gcs", "channel_id", channelID, "task_id", taskID, "bucket", g.bucket, "key", key)
	return url, nil
}

func (g *gcsStrategy) publicURL(key string) string {
	if g.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", g.cdnDomain, key)
	}
	if g.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(g.publicBaseURL, "/"), g.bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	default:
		return ""
	}
}
