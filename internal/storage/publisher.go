// Package storage publishes recordings to S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"meeting-insights-go/internal/tempfiles"
)

const (
	mergedPrefix   = "recordings/"
	originalPrefix = "recordings/originals/"
)

// ErrNoBucket is returned when S3_BUCKET is not configured.
var ErrNoBucket = errors.New("S3_BUCKET not configured")

// ObjectPutter is the part of *s3.Client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Publisher struct {
	client ObjectPutter
	bucket string
	log    *logrus.Entry
}

func NewPublisher(client ObjectPutter, bucket string, log *logrus.Entry) *Publisher {
	return &Publisher{client: client, bucket: bucket, log: log.WithField("component", "storage")}
}

// MergedKey places a merged artifact under recordings/.
func MergedKey(name string) string {
	return mergedPrefix + tempfiles.SafeName(name)
}

// OriginalKey places an original stream under recordings/originals/ with a
// timestamp and the run token ahead of the client's filename.
func OriginalKey(now time.Time, runToken, filename string) string {
	return fmt.Sprintf("%s%d-%s-%s", originalPrefix, now.UnixMilli(), runToken, tempfiles.SafeName(filename))
}

// Locator is the stable reference returned to clients and stored with the meeting.
func (p *Publisher) Locator(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}

// Publish uploads data privately under key and returns its locator.
func (p *Publisher) Publish(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if p.bucket == "" {
		return "", ErrNoBucket
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	start := time.Now()
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	p.log.WithFields(logrus.Fields{
		"key":         key,
		"bytes":       len(data),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("object published")
	return p.Locator(key), nil
}
