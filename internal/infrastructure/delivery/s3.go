package delivery

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

var slugExpr = regexp.MustCompile(`[^a-z0-9]+`)

// ObjectPutter is the slice of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink archives each digest as an object keyed by topic, date and run.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

var _ ports.Sink = (*S3Sink)(nil)

// NewS3Sink builds a client from the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3SinkWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkWithClient wires an existing client.
func NewS3SinkWithClient(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Name identifies the sink in logs.
func (s *S3Sink) Name() string { return "s3" }

// Deliver uploads the document.
func (s *S3Sink) Deliver(ctx context.Context, doc domain.Document) error {
	if s.client == nil || s.bucket == "" {
		return fmt.Errorf("s3 sink misconfigured")
	}

	key := s.Key(doc)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(doc.HTML),
		ContentType:  aws.String("text/html; charset=utf-8"),
		CacheControl: aws.String("no-cache"),
		Metadata: map[string]string{
			"run-id": doc.RunID,
			"topic":  doc.Topic,
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Key returns <prefix>/<topic-slug>/<date>-<run id>.html.
func (s *S3Sink) Key(doc domain.Document) string {
	name := fmt.Sprintf("%s-%s.html", doc.GeneratedAt.UTC().Format("2006-01-02"), doc.RunID)
	return path.Join(s.prefix, slug(doc.Topic), name)
}

func slug(s string) string {
	s = strings.Trim(slugExpr.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "digest"
	}
	return s
}
