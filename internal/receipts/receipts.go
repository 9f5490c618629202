// Package receipts archives the photos users attach to chat messages.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"finai/internal/log"
	"finai/internal/oracle"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

var ErrEmptyReceipt = errors.New("receipt has no data")

// ObjectKey is where a message's receipt is stored:
// receipts/<user>/<message-id>.<ext>.
func ObjectKey(userID, messageID, mimeType string) string {
	return path.Join("receipts", userID, messageID+"."+Extension(mimeType))
}

// Extension maps an image MIME type to a file extension.
func Extension(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpeg", "image/jpg", "":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	case "image/gif":
		return "gif"
	case "application/pdf":
		return "pdf"
	default:
		return "bin"
	}
}

// objectPutter writes one object. It exists so tests can run without GCS.
type objectPutter interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// Archiver stores receipts in a bucket.
type Archiver struct {
	bucket string
	put    objectPutter
	logger *log.Logger
}

// NewGCSArchiver uses Application Default Credentials.
func NewGCSArchiver(ctx context.Context, bucket string, logger *log.Logger) (*Archiver, func() error, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, nil, errors.New("receipts bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	return newArchiver(bucket, &gcsPutter{bkt: client.Bucket(bucket)}, logger), client.Close, nil
}

func newArchiver(bucket string, put objectPutter, logger *log.Logger) *Archiver {
	if logger == nil {
		logger = log.Discard()
	}
	return &Archiver{bucket: bucket, put: put, logger: logger.WithComponent(log.ComponentReceipts)}
}

// Archive uploads img and returns its gs:// URI.
func (a *Archiver) Archive(ctx context.Context, userID, messageID string, img oracle.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyReceipt
	}
	contentType := img.MIMEType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := ObjectKey(userID, messageID, contentType)
	if err := a.put.Put(ctx, key, contentType, img.Data); err != nil {
		return "", fmt.Errorf("archive receipt %s: %w", key, err)
	}
	uri := fmt.Sprintf("gs://%s/%s", a.bucket, key)
	a.logger.InfoContext(ctx, "Receipt archived", log.FieldUserID, userID, "uri", uri, "bytes", len(img.Data))
	return uri, nil
}

type gcsPutter struct {
	bkt *storage.BucketHandle
}

func (g *gcsPutter) Put(ctx context.Context, key, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.bkt.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}
