package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/zombor/receipt-splitter/internal/imaging"
)

const keyPrefix = "receipts/"

// S3API is the subset of the S3 client used by BlobStore
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config describes the target bucket
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores. Objects
	// are then addressed path-style under it.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ImageRef points at an uploaded image
type ImageRef struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// IDGenerator generates unique IDs for object keys
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// BlobStore uploads receipt images to S3 and hands back public URLs
type BlobStore struct {
	client      S3API
	bucket      string
	region      string
	endpoint    string
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger
}

// NewS3Client builds an SDK client from the default credential chain, or
// from static credentials when both keys are set
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &ConfigError{Reason: ReasonUnavailable, Bucket: cfg.Bucket, Err: err}
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewBlobStore checks the bucket is reachable and returns a BlobStore
func NewBlobStore(ctx context.Context, cfg Config, client S3API) (*BlobStore, error) {
	return NewBlobStoreWithDeps(ctx, cfg, client, uuidGenerator{}, systemTime{}, slog.Default())
}

// NewBlobStoreWithDeps creates a BlobStore with custom dependencies for testing
func NewBlobStoreWithDeps(ctx context.Context, cfg Config, client S3API, idGen IDGenerator, timeSrc TimeSource, logger *slog.Logger) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, &ConfigError{Reason: ReasonMissingBucket}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, &ConfigError{Reason: classifyProbeError(err), Bucket: cfg.Bucket, Err: err}
	}

	return &BlobStore{
		client:      client,
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      logger,
	}, nil
}

func classifyProbeError(err error) Reason {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusForbidden:
			return ReasonForbidden
		case http.StatusNotFound:
			return ReasonNotFound
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "403", "Forbidden", "AccessDenied":
			return ReasonForbidden
		case "404", "NotFound", "NoSuchBucket":
			return ReasonNotFound
		}
	}
	return ReasonUnavailable
}

// Upload validates and optimizes the image, stores it with a public-read ACL
// and returns a URL for it. A failed verification of the URL is logged but
// never fails the upload.
func (b *BlobStore) Upload(ctx context.Context, data []byte) (*ImageRef, error) {
	optimized, err := imaging.Preprocess(data)
	if err != nil {
		b.logger.Error("Rejected receipt image", "error", err, "size", len(data))
		return nil, err
	}
	b.logger.Debug("Image optimized", "original_size", len(data), "size", len(optimized))

	timestamp := b.timeSource.Now().UTC().Format("20060102_150405")
	id := b.idGenerator.Generate()
	key := fmt.Sprintf("%s%s_%s.png", keyPrefix, timestamp, id)

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(optimized),
		ContentType: aws.String("image/jpeg"),
		ACL:         types.ObjectCannedACLPublicRead,
		Metadata: map[string]string{
			"upload_timestamp": timestamp,
			"content_type":     "receipt_image",
			"id":               id,
		},
	})
	if err != nil {
		b.logger.Error("Failed to upload receipt image", "bucket", b.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("uploading image to bucket %s: %w", b.bucket, err)
	}
	b.logger.Info("Uploaded receipt image", "bucket", b.bucket, "key", key, "size", len(optimized))

	candidates := b.candidateURLs(key)
	for _, u := range candidates {
		if b.Verify(ctx, u) {
			return &ImageRef{URL: u, Key: key}, nil
		}
		b.logger.Warn("Uploaded image URL verification failed", "url", u)
	}
	return &ImageRef{URL: candidates[0], Key: key}, nil
}

// candidateURLs lists the public URL forms for key, canonical first
func (b *BlobStore) candidateURLs(key string) []string {
	if b.endpoint != "" {
		return []string{fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucket, key)}
	}
	return []string{
		fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, key),
		fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", b.region, b.bucket, key),
	}
}

// Verify reports whether url names an object that exists in the bucket.
// Unrecognised URL shapes are reported as false.
func (b *BlobStore) Verify(ctx context.Context, rawURL string) bool {
	key, ok := b.keyFromURL(rawURL)
	if !ok {
		b.logger.Error("Invalid object URL format", "url", rawURL)
		return false
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.logger.Error("Failed to verify image URL", "url", rawURL, "error", err)
		return false
	}
	return true
}

// keyFromURL recognises:
//
//	https://{bucket}.s3.amazonaws.com/{key}
//	https://{bucket}.s3.{region}.amazonaws.com/{key}
//	https://s3.{region}.amazonaws.com/{bucket}/{key}
//	{endpoint}/{bucket}/{key}
func (b *BlobStore) keyFromURL(rawURL string) (string, bool) {
	if b.endpoint != "" {
		prefix := b.endpoint + "/" + b.bucket + "/"
		if strings.HasPrefix(rawURL, prefix) {
			return nonEmpty(strings.TrimPrefix(rawURL, prefix))
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimPrefix(u.Path, "/")

	if !strings.HasSuffix(host, ".amazonaws.com") {
		return "", false
	}
	switch {
	case strings.HasPrefix(host, b.bucket+".s3."):
		return nonEmpty(path)
	case strings.HasPrefix(host, "s3.") || host == "s3.amazonaws.com":
		key, found := strings.CutPrefix(path, b.bucket+"/")
		if !found {
			return "", false
		}
		return nonEmpty(key)
	}
	return "", false
}

func nonEmpty(key string) (string, bool) {
	return key, key != ""
}
