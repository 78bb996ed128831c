// Package storage uploads rendered artifacts to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gosimple/slug"

	"resume-printer/internal/config"
	"resume-printer/internal/domain"
	"resume-printer/internal/infra/logging"
)

// S3Uploader writes artifacts under <owner>/<category>/<name>.<ext> and hands
// out URLs below the public storage base URL.
type S3Uploader struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Uploader builds the client. The endpoint defaults to publicURL, which
// suits a MinIO instance reachable at the same address by the service and by readers.
func NewS3Uploader(cfg config.StorageConfig, publicURL string) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = publicURL
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		// S3-compatible servers do not all accept streaming checksum trailers.
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = !cfg.VirtualHostStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &S3Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (u *S3Uploader) EnsureBucket(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	logging.Info("Creating storage bucket", "bucket", u.bucket)
	_, err = u.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(u.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// UploadObject stores data and returns its public URL. The same owner,
// category and identifier always map to the same key, so a retry overwrites.
func (u *S3Uploader) UploadObject(ctx context.Context, ownerID string, category domain.Category, data []byte, identifier string) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}
	mode := domain.ModePDF
	if category == domain.CategoryPreviews {
		mode = domain.ModeImage
	}
	key := ObjectKey(ownerID, category, identifier, mode.Extension())

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mode.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	logging.Debug("Object uploaded", "key", key, "bytes", len(data))
	return u.ObjectURL(key), nil
}

// ObjectURL is the public address of key.
func (u *S3Uploader) ObjectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return u.publicURL + "/" + url.PathEscape(u.bucket) + "/" + strings.Join(segments, "/")
}

// ObjectKey lays out <owner>/<category>/<slug(identifier)>.<ext>.
func ObjectKey(ownerID string, category domain.Category, identifier, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", ownerID, category, Slug(identifier), ext)
}

// Slug turns s into a lowercase ASCII object name; titles with nothing
// usable become "untitled".
func Slug(s string) string {
	if out := slug.Make(s); out != "" {
		return out
	}
	return "untitled"
}
