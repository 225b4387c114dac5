package objectstore

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ledgerflow/ingestor/internal/model"
)

// r2Inbox lists, downloads, and archives documents stored in an
// S3-compatible bucket (Cloudflare R2 in production). Grounded on
// original_source/app/r2_service.py's prefix-scoped list/download/
// copy-then-delete archive pattern, reimplemented over aws-sdk-go-v2's s3
// client the way jordigilh-kubernaut already pulls in the aws-sdk-go-v2
// family for bedrockruntime.
type r2Inbox struct {
	client        *s3.Client
	bucket        string
	inboxPrefix   string
	archivePrefix string
}

// R2Config supplies the credentials and bucket layout for a Cloudflare
// R2 (or any S3-compatible) inbox.
type R2Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	InboxPrefix     string
	ArchivePrefix   string
}

func NewR2Inbox(ctx context.Context, cfg R2Config) (Inbox, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("objectstore: R2_BUCKET_NAME must be configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = true
	})

	return &r2Inbox{
		client:        client,
		bucket:        cfg.BucketName,
		inboxPrefix:   cfg.InboxPrefix,
		archivePrefix: cfg.ArchivePrefix,
	}, nil
}

func (r *r2Inbox) ListInbox(ctx context.Context) ([]model.InboxCandidate, error) {
	var candidates []model.InboxCandidate
	var continuation *string

	for {
		output, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(r.inboxPrefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("objectstore: list inbox: %w", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			mimeType := mimeTypeForKey(key)
			if !AllowedMimeTypes[mimeType] {
				continue
			}
			var modifiedAt *time.Time
			if obj.LastModified != nil {
				modifiedAt = obj.LastModified
			}
			candidates = append(candidates, model.InboxCandidate{
				ID:         key,
				Name:       path.Base(key),
				MimeType:   mimeType,
				Size:       aws.ToInt64(obj.Size),
				ModifiedAt: modifiedAt,
			})
		}

		if output.IsTruncated == nil || !*output.IsTruncated {
			break
		}
		continuation = output.NextContinuationToken
	}
	return candidates, nil
}

func (r *r2Inbox) Download(ctx context.Context, id, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create download dir: %w", err)
	}

	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: get object %q: %w", id, err)
	}
	defer output.Body.Close()

	file, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("objectstore: create local file: %w", err)
	}
	defer file.Close()

	if _, err := file.ReadFrom(output.Body); err != nil {
		return "", fmt.Errorf("objectstore: write downloaded object: %w", err)
	}
	return outPath, nil
}

func (r *r2Inbox) MoveToArchive(ctx context.Context, id string) (string, error) {
	destKey := strings.TrimRight(r.archivePrefix, "/") + "/" + path.Base(id)
	copySource := r.bucket + "/" + id

	if _, err := r.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(r.bucket),
		CopySource: aws.String(copySource),
		Key:        aws.String(destKey),
	}); err != nil {
		return "", fmt.Errorf("objectstore: copy to archive: %w", err)
	}

	if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(id),
	}); err != nil {
		return "", fmt.Errorf("objectstore: delete original after archive copy: %w", err)
	}
	return destKey, nil
}

func mimeTypeForKey(key string) string {
	if guessed := mime.TypeByExtension(filepath.Ext(key)); guessed != "" {
		return strings.Split(guessed, ";")[0]
	}
	return "application/octet-stream"
}
