// Package storage wraps the S3-compatible object store holding uploaded
// import files.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxpoint/internal/config"
)

// Client is an object-store client bound to one bucket.
type Client struct {
	api           *s3.Client
	bucket        string
	publicBaseURL string
}

// New builds a client from config. A non-empty endpoint switches to
// path-style addressing for MinIO and other S3 compatibles.
func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, eris.Wrap(err, "storage: load aws config")
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			scheme := "http"
			if cfg.UseSSL {
				scheme = "https"
			}
			o.BaseEndpoint = aws.String(scheme + "://" + cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		api:           api,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}

	_, err = c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return eris.Wrapf(err, "storage: create bucket %s", c.bucket)
	}
	zap.L().Info("created storage bucket", zap.String("bucket", c.bucket))
	return nil
}

// UploadBytes stores an object.
func (c *Client) UploadBytes(ctx context.Context, objectName string, content []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectName),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.api.PutObject(ctx, input); err != nil {
		return eris.Wrapf(err, "storage: put %s", objectName)
	}
	return nil
}

// GetObjectBytes reads a whole object into memory.
func (c *Client) GetObjectBytes(ctx context.Context, objectName string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get %s", objectName)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", objectName)
	}
	return data, nil
}

// DownloadToFile streams an object to a local path.
func (c *Client) DownloadToFile(ctx context.Context, objectName, path string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return eris.Wrapf(err, "storage: get %s", objectName)
	}
	defer out.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "storage: create %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return eris.Wrapf(err, "storage: write %s", path)
	}
	return nil
}

// ObjectURL returns the stable path stored on task records: a public URL
// when one is configured, otherwise the bucket/name form.
func (c *Client) ObjectURL(objectName string) string {
	if c.publicBaseURL != "" {
		return c.publicBaseURL + "/" + c.bucket + "/" + objectName
	}
	return c.bucket + "/" + objectName
}

// ExtractObjectName recovers the object name from a stored file path, which
// is either the bucket/name form or a full URL whose path contains the
// bucket.
func (c *Client) ExtractObjectName(filePath string) (string, error) {
	if filePath == "" {
		return "", eris.New("storage: empty file path")
	}

	if !strings.Contains(filePath, "://") {
		if name, ok := strings.CutPrefix(filePath, c.bucket+"/"); ok && name != "" {
			return name, nil
		}
		// Paths this process never wrote pass through unchanged.
		return filePath, nil
	}

	parsed, err := url.Parse(filePath)
	if err != nil {
		return "", eris.Wrapf(err, "storage: parse file path %q", filePath)
	}
	path := strings.TrimPrefix(parsed.Path, "/")
	if name, ok := strings.CutPrefix(path, c.bucket+"/"); ok && name != "" {
		return name, nil
	}
	if path != "" {
		return path, nil
	}
	return "", eris.Errorf("storage: cannot derive object name from %q", filePath)
}
