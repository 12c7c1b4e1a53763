package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
)

// Fetcher copies an archive identified by source into w.
type Fetcher interface {
	Fetch(ctx context.Context, source string, w io.Writer) error
}

// SourceFetcher dispatches on the source scheme: http and https are
// downloaded, s3 objects are read through the S3 API, and anything else is
// treated as a local path.
type SourceFetcher struct {
	logger  zerolog.Logger
	http    *http.Client
	s3      func() *s3.Client
	timeout time.Duration
}

// NewSourceFetcher creates a SourceFetcher. Every fetch is bounded by the
// configured CMS timeout.
func NewSourceFetcher(logger zerolog.Logger, cfg *config.Config) *SourceFetcher {
	f := &SourceFetcher{
		logger:  logger.With().Str("component", "archive-fetcher").Logger(),
		http:    &http.Client{},
		timeout: cfg.CMSTimeout,
	}
	f.s3 = func() *s3.Client {
		opts := s3.Options{
			Region:       cfg.S3Region,
			UsePathStyle: true,
		}
		if cfg.S3Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3AccessKey != "" {
			opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
		}
		return s3.New(opts)
	}
	return f
}

// ErrFetchTimeout is returned when a download exceeds its time budget.
var ErrFetchTimeout = errors.New("archive download timed out")

// Fetch implements Fetcher.
func (f *SourceFetcher) Fetch(ctx context.Context, source string, w io.Writer) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	f.logger.Info().Str("source", source).Dur("timeout", f.timeout).Msg("fetching archive")

	var err error
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		err = f.fetchHTTP(ctx, source, w)
	case strings.HasPrefix(source, "s3://"):
		err = f.fetchS3(ctx, source, w)
	default:
		err = fetchFile(strings.TrimPrefix(source, "file://"), w)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrFetchTimeout, f.timeout, source)
	}
	return err
}

func (f *SourceFetcher) fetchHTTP(ctx context.Context, source string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", source, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download %s: %w", source, err)
	}
	return nil
}

func (f *SourceFetcher) fetchS3(ctx context.Context, source string, w io.Writer) error {
	bucket, key, err := ParseS3URL(source)
	if err != nil {
		return err
	}
	out, err := f.s3().GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s: %w", source, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("read object %s: %w", source, err)
	}
	return nil
}

func fetchFile(path string, w io.Writer) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("read archive %s: %w", path, err)
	}
	return nil
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", source, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q", source)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url %q has no object key", source)
	}
	return u.Host, key, nil
}
