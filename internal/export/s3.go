package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of the S3 API a destination needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads each snapshot over a single object key. The snapshot
// id, time and schedule count ride along as object metadata.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
}

// NewS3Destination resolves credentials from the default AWS chain. A
// non-empty endpoint selects path-style addressing for MinIO and similar
// stores.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Destination{client: client, bucket: bucket, key: key}, nil
}

func (d *S3Destination) String() string { return "s3://" + d.bucket + "/" + d.key }

func (d *S3Destination) Write(ctx context.Context, snap *Snapshot) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key),
		Body:          bytes.NewReader(snap.Data),
		ContentLength: aws.Int64(int64(len(snap.Data))),
		ContentType:   aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"snapshot-id":    snap.ID,
			"snapshot-taken": snap.Taken.Format(time.RFC3339),
			"schedule-count": strconv.Itoa(snap.Schedules),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot %s to %s: %w", snap.ID, d, err)
	}
	return nil
}
