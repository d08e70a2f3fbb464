package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FileStorage stores uploaded media and generated images by key
type FileStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// UploadURL returns a URL a client can PUT the file body to
	UploadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	// URL returns a URL the file can be fetched from
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// localPather is implemented by storages that keep files on the local disk
type localPather interface {
	Path(key string) (string, error)
}

// NewFileStorage builds the storage backend selected in config
func NewFileStorage(ctx context.Context, config *Config) (FileStorage, error) {
	switch config.StorageBackend {
	case "", "local":
		return NewLocalStorage(config.MediaDir), nil
	case "s3":
		return NewS3Storage(ctx, S3Options{
			Bucket:    config.S3Bucket,
			Region:    config.S3Region,
			Endpoint:  config.S3Endpoint,
			AccessKey: config.S3AccessKey,
			SecretKey: config.S3SecretKey,
		})
	default:
		return nil, Wrap(ErrValidation, "storage", fmt.Errorf("unknown storage backend %q", config.StorageBackend))
	}
}

// MediaKey builds the storage key for a file belonging to a project
func MediaKey(projectID, id, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join("projects", projectID, id+ext)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return Wrap(ErrValidation, "storage key", fmt.Errorf("invalid key %q", key))
	}
	return nil
}

// LocalStorage keeps files under a root directory
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a storage rooted at dir
func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{root: dir}
}

// Path returns the on-disk location for key
func (l *LocalStorage) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *LocalStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return Wrap(ErrUpload, "creating media directory", err)
	}

	// write to a temp file first so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return Wrap(ErrUpload, "creating temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		tmp.Close()
		return Wrap(ErrUpload, "writing "+key, err)
	}
	if err := tmp.Close(); err != nil {
		return Wrap(ErrUpload, "closing "+key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return Wrap(ErrUpload, "storing "+key, err)
	}
	return nil
}

func (l *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Wrap(ErrNotFound, "open media", fmt.Errorf("file %s", key))
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return f, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// UploadURL returns the API path that accepts the upload body
func (l *LocalStorage) UploadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return "/api/files/" + key, nil
}

func (l *LocalStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	p, err := l.Path(key)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

// S3Options configures an S3-compatible bucket
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Storage keeps files in an S3-compatible bucket
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Storage creates an S3 storage. A custom endpoint switches to path-style
// addressing for MinIO and similar services.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, Wrap(ErrValidation, "s3 storage", fmt.Errorf("bucket is required"))
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Wrap(ErrUpload, "s3 put "+key, err)
	}
	return nil
}

func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, Wrap(ErrNotFound, "open media", fmt.Errorf("file %s", key))
		}
		return nil, Wrap(ErrNetwork, "s3 get "+key, err)
	}
	return out.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Wrap(ErrNetwork, "s3 delete "+key, err)
	}
	return nil
}

func (s *S3Storage) UploadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presigning upload: %w", err)
	}
	return req.URL, nil
}

func (s *S3Storage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presigning download: %w", err)
	}
	return req.URL, nil
}

// LocalCopy makes a stored file available on disk. Local storage returns the
// file in place; other backends download it into dir. cleanup removes any
// downloaded copy.
func LocalCopy(ctx context.Context, storage FileStorage, key, dir string) (string, func(), error) {
	if lp, ok := storage.(localPather); ok {
		p, err := lp.Path(key)
		if err != nil {
			return "", nil, err
		}
		if !FileExists(p) {
			return "", nil, Wrap(ErrNotFound, "media", fmt.Errorf("file %s", key))
		}
		return p, func() {}, nil
	}

	if err := EnsureDirs(dir); err != nil {
		return "", nil, fmt.Errorf("creating temp directory: %w", err)
	}

	rc, err := storage.Open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	f, err := os.CreateTemp(dir, "media-*"+path.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(f, readerWithContext(ctx, rc)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("closing temp file: %w", err)
	}

	name := f.Name()
	return name, func() { cleanupFiles(name) }, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}
