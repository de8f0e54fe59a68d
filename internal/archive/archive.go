// Package archive copies finished uploads to S3-compatible object storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/tusstore/internal/logging"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Source is the part of upload.StorageService the archiver reads from.
type Source interface {
	GetUploadInfo(ctx context.Context, uri, ownerKey string) (*upload.Info, error)
	GetUploadedBytes(ctx context.Context, uri, ownerKey string) (io.ReadCloser, error)
}

// Options configures the object storage target.
type Options struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

type Archiver struct {
	src  Source
	opts Options
	log  logging.Logger
	now  func() time.Time
}

func NewArchiver(src Source, opts Options, log logging.Logger) *Archiver {
	if log == nil {
		log = logging.Nop()
	}
	return &Archiver{src: src, opts: opts, log: log, now: time.Now}
}

// ObjectKey is the bucket key an upload archived at t is stored under.
func ObjectKey(id string, t time.Time) string {
	return fmt.Sprintf("uploads/%d/%d/%d/%s", t.Year(), t.Month(), t.Day(), id)
}

func (a *Archiver) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.opts.AccessKey,
			a.opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// Archive uploads the stored bytes of the upload addressed by uri and returns
// the object key. Only the first Offset bytes of the data file are sent.
func (a *Archiver) Archive(ctx context.Context, uri, ownerKey string) (string, error) {
	info, err := a.src.GetUploadInfo(ctx, uri, ownerKey)
	if err != nil {
		return "", err
	}

	body, err := a.src.GetUploadedBytes(ctx, uri, ownerKey)
	if err != nil {
		return "", err
	}
	defer body.Close()

	client, err := a.client(ctx)
	if err != nil {
		return "", err
	}

	var r io.Reader = body
	if ra, ok := body.(io.ReaderAt); ok {
		r = io.NewSectionReader(ra, 0, info.Offset)
	}

	key := ObjectKey(info.ID, a.now().UTC())
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.opts.Bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(info.Offset),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	a.log.Info(ctx, "upload archived", "id", info.ID, "bucket", a.opts.Bucket, "key", key, "size", info.Offset)
	return key, nil
}
