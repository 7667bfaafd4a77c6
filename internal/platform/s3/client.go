package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Manifest describes one backup rotation of one resource.
type Manifest struct {
	ResourceID   string    `json:"resourceId"`
	HypervisorID int       `json:"hypervisorId"`
	RotatedAt    time.Time `json:"rotatedAt"`
	Evicted      []string  `json:"evicted"`
	Created      string    `json:"created,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Key returns the object key the manifest is stored under.
func (m Manifest) Key() string {
	return fmt.Sprintf("backups/%s/%s.json", m.ResourceID, m.RotatedAt.UTC().Format("20060102T150405Z"))
}

// Client writes manifests to one bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// NewClient creates a manifest archive client for an S3-compatible endpoint.
func NewClient(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket cannot be empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &Client{s3: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket unless it already exists and is ours.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}

	_, err = c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil && !isBucketAlreadyOwnedByYou(err) {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// PutManifest uploads m as JSON.
func (c *Client) PutManifest(ctx context.Context, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	key := m.Key()
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put manifest %s in bucket %s: %w", key, c.bucket, err)
	}
	return nil
}

// ListManifests returns the manifest keys stored for a resource.
func (c *Client) ListManifests(ctx context.Context, resourceID string) ([]string, error) {
	result, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String("backups/" + resourceID + "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests of %s: %w", resourceID, err)
	}

	var keys []string
	for _, obj := range result.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// isBucketAlreadyOwnedByYou checks if the error indicates the bucket exists and is owned by us.
func isBucketAlreadyOwnedByYou(err error) bool {
	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}

	// S3-compatible services do not always return the SDK error types.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

// isNotFoundError checks if the error is a not found error.
func isNotFoundError(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchBucket" || code == "404"
	}
	return false
}
