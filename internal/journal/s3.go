package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client used by S3.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores one JSON object per database and operation.
type S3 struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// NewS3 creates a journal writing under prefix in bucket.
func NewS3(api ObjectAPI, bucket, prefix string) *S3 {
	return &S3{api: api, bucket: bucket, prefix: prefix}
}

// NewS3Client builds an S3 client from cfg. A non-empty endpoint selects a
// path-style S3-compatible service.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

func (j *S3) objectKey(database, operation string) string {
	return fmt.Sprintf("%s%s/%s.json", j.prefix, database, operation)
}

func (j *S3) Record(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	_, err = j.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(j.bucket),
		Key:         aws.String(j.objectKey(e.Database, e.Operation)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put journal entry: %w", err)
	}
	return nil
}

func (j *S3) Last(ctx context.Context, database, operation string) (*Entry, error) {
	out, err := j.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(j.bucket),
		Key:    aws.String(j.objectKey(database, operation)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get journal entry: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read journal entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse journal entry: %w", err)
	}
	return &e, nil
}

func (j *S3) Clear(ctx context.Context, database, operation string) error {
	_, err := j.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(j.bucket),
		Key:    aws.String(j.objectKey(database, operation)),
	})
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	return nil
}
