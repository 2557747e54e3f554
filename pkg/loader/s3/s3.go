package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/singleflight"

	"github.com/knowledgebase/netgraph/pkg/loader"
)

// S3FileLoader is a FileLoader implementation that loads file contents from
// an S3 bucket. It uses the AWS SDK v2 for Go.
//
// This loader is useful when the graph data files are published to object
// storage instead of being shipped next to the binary.
type S3FileLoader struct {
	bucket string
	client ObjectClient

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// ObjectClient is the part of *s3.Client the loader uses.
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3FileLoaderWithClient creates a new S3FileLoader using an existing
// client, so the loader can share the process-wide *s3.Client.
func NewS3FileLoaderWithClient(bucket string, client ObjectClient) *S3FileLoader {
	return &S3FileLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// ReadFile retrieves the object stored under key. It implements the
// FileLoader interface.
func (l *S3FileLoader) ReadFile(ctx context.Context, key string) ([]byte, error) {
	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return nil, fmt.Errorf("%w: s3://%s/%s", loader.ErrNotFound, l.bucket, key)
			}
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[key] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// WriteFile uploads data under key and refreshes the cache entry.
func (l *S3FileLoader) WriteFile(ctx context.Context, key string, data []byte) error {
	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return err
	}

	l.cacheMu.Lock()
	l.cache[key] = append([]byte(nil), data...)
	l.cacheMu.Unlock()
	return nil
}

func (l *S3FileLoader) Invalidate() {
	l.cacheMu.Lock()
	l.cache = make(map[string][]byte)
	l.cacheMu.Unlock()
}
