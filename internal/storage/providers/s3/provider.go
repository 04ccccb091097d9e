// Package s3 implements the storage backend against any S3-compatible
// object store. A top-level "folder" is a common key prefix ending in
// "/", created on demand with a zero-byte marker object; share links
// are presigned GET URLs.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/ferryhq/ferry/internal/storage"
)

// Config carries the deployment-level backend settings. Credentials
// are per-chat and arrive through Authenticate.
type Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	LinkExpiry time.Duration
}

// Backend builds authenticated S3 handles from user credentials.
type Backend struct {
	logger *slog.Logger
	cfg    Config
}

// NewBackend creates an S3 backend for the configured bucket.
func NewBackend(log *slog.Logger, cfg Config) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		logger: log.With(slog.String("backend", "s3")),
		cfg:    cfg,
	}
}

// Authenticate builds a client from static credentials and verifies
// bucket access with a HeadBucket call before handing out the handle.
func (b *Backend) Authenticate(ctx context.Context, creds storage.Credentials) (storage.Handle, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(b.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKey,
			creds.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if b.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	h := &handle{
		logger:  b.logger,
		api:     client,
		presign: awss3.NewPresignClient(client),
		bucket:  b.cfg.Bucket,
		expiry:  b.cfg.LinkExpiry,
	}
	if _, err := client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)}); err != nil {
		b.logger.Warn("bucket access check failed",
			slog.String("bucket", b.cfg.Bucket),
			slog.String("code", apiErrorCode(err)),
			slog.Any("error", err))
		return nil, fmt.Errorf("verify bucket access: %w", err)
	}
	return h, nil
}

// objectAPI is the slice of the S3 client the handle uses; tests
// substitute a fake.
type objectAPI interface {
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type handle struct {
	logger  *slog.Logger
	api     objectAPI
	presign presignAPI
	bucket  string
	expiry  time.Duration
}

func (h *handle) ListFolders(ctx context.Context) ([]storage.Folder, error) {
	var folders []storage.Folder
	input := &awss3.ListObjectsV2Input{
		Bucket:    aws.String(h.bucket),
		Delimiter: aws.String("/"),
	}
	for {
		out, err := h.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list folders: %w", err)
		}
		for _, p := range out.CommonPrefixes {
			if p.Prefix == nil {
				continue
			}
			name := strings.TrimSuffix(*p.Prefix, "/")
			if name == "" {
				continue
			}
			folders = append(folders, storage.Folder{Name: name, Key: *p.Prefix})
		}
		if out.NextContinuationToken == nil {
			return folders, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

func (h *handle) CreateFolder(ctx context.Context, name string) (storage.Folder, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return storage.Folder{}, fmt.Errorf("folder name is required")
	}
	key := name + "/"
	_, err := h.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return storage.Folder{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	return storage.Folder{Name: name, Key: key}, nil
}

func (h *handle) Upload(ctx context.Context, localPath string, folder storage.Folder) (storage.RemoteFile, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return storage.RemoteFile{}, fmt.Errorf("open staged file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	name := filepath.Base(localPath)
	key := folder.Key + name
	if _, err := h.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		h.logger.Warn("upload failed",
			slog.String("key", key),
			slog.String("code", apiErrorCode(err)),
			slog.Any("error", err))
		return storage.RemoteFile{}, fmt.Errorf("put object %q: %w", key, err)
	}
	return storage.RemoteFile{Name: name, Key: key}, nil
}

func (h *handle) ShareLink(ctx context.Context, file storage.RemoteFile) (string, error) {
	req, err := h.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(file.Key),
	}, awss3.WithPresignExpires(h.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", file.Key, err)
	}
	return req.URL, nil
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}
