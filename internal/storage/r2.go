// ===============================
// internal/storage/r2.go - Poster Storage (Cloudflare R2)
// ===============================

package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/c-o-l-d-x/SeriesBoT/internal/config"
)

// PosterStore keeps series poster images in an R2 bucket. Posters are
// optional decoration; everything else in the catalog works without them.
type PosterStore struct {
	client     *s3.S3
	bucketName string
	publicURL  string
}

func NewPosterStore(cfg config.R2Config) (*PosterStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("auto"),
		Endpoint:         aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create R2 session: %w", err)
	}

	return &PosterStore{
		client:     s3.New(sess),
		bucketName: cfg.BucketName,
		publicURL:  cfg.PublicURL,
	}, nil
}

// UploadPoster stores a poster image and returns its public URL. Keys are
// time-stamped so re-uploads never collide with cached copies.
func (p *PosterStore) UploadPoster(ctx context.Context, seriesKey string, image io.Reader, contentType string) (string, error) {
	key := fmt.Sprintf("posters/%s/%d.jpg", seriesKey, time.Now().Unix())

	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucketName),
		Key:         aws.String(key),
		Body:        aws.ReadSeekCloser(image),
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload poster to R2: %w", err)
	}

	return p.PublicURL(key), nil
}

// DeletePoster removes a stored poster.
func (p *PosterStore) DeletePoster(ctx context.Context, key string) error {
	_, err := p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete poster from R2: %w", err)
	}
	return nil
}

func (p *PosterStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", p.publicURL, key)
}

// KeyFromURL inverts PublicURL. ok is false for URLs outside this bucket,
// including posters inherited from another storage.
func (p *PosterStore) KeyFromURL(url string) (string, bool) {
	prefix := p.publicURL + "/"
	if p.publicURL == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
