package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/knowledgebase/netgraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Bucket is the bucket holding dataset files.
func Bucket() string {
	return util.GetEnv("AWS_BUCKET")
}

// Enabled reports whether object storage is configured.
func Enabled() bool {
	return Bucket() != ""
}

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// ListFilesWithPrefix returns every key below prefix in bucket.
func ListFilesWithPrefix(ctx context.Context, client s3.ListObjectsV2APIClient, bucket, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// MissingFiles reports which of names are not present directly below prefix.
func MissingFiles(ctx context.Context, client s3.ListObjectsV2APIClient, bucket, prefix string, names ...string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := ListFilesWithPrefix(ctx, client, bucket, prefix)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[strings.TrimPrefix(k, prefix)] = struct{}{}
	}
	var missing []string
	for _, n := range names {
		if _, ok := present[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}
