package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ObjectStorage is the subset of the S3 API used by the archive mirror.
type ObjectStorage interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Mirror keeps copies of immutable release assets in an S3 compatible bucket.
type Mirror struct {
	storage ObjectStorage
	bucket  string
}

func NewMirror(storage ObjectStorage, bucket string) *Mirror {
	return &Mirror{storage: storage, bucket: bucket}
}

// Mirrorable reports whether rawURL points to a release asset, whose content never changes.
// Branch archives and zipballs are never mirrored.
func Mirrorable(rawURL string) bool {
	return strings.Contains(rawURL, "/releases/assets/") || strings.Contains(rawURL, "/releases/download/")
}

func ObjectKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("archives/%s.zip", hex.EncodeToString(sum[:]))
}

// Restore copies the mirrored archive of rawURL into dst. It returns false if there is none.
func (m *Mirror) Restore(ctx context.Context, rawURL string, dst io.Writer) (bool, error) {
	key := ObjectKey(rawURL)
	_, err := m.storage.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("could not check mirrored archive: %w", err)
	}
	obj, err := m.storage.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	if err != nil {
		return false, fmt.Errorf("could not fetch mirrored archive: %w", err)
	}
	defer obj.Body.Close()
	if _, err := io.Copy(dst, obj.Body); err != nil {
		return false, fmt.Errorf("could not read mirrored archive: %w", err)
	}
	return true, nil
}

// Store uploads the archive at path as the mirror of rawURL.
func (m *Mirror) Store(ctx context.Context, rawURL, path string) error {
	checksum, err := fileChecksum(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open archive: %w", err)
	}
	defer f.Close()
	key := ObjectKey(rawURL)
	_, err = m.storage.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/zip"),
		Metadata: map[string]string{
			"checksum": checksum,
		},
	})
	if err != nil {
		return fmt.Errorf("could not upload archive: %w", err)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open archive: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("could not hash archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
