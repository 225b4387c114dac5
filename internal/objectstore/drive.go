package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/ledgerflow/ingestor/internal/model"
)

// driveInbox lists, downloads, and archives documents under one Google
// Drive folder. Grounded on original_source/app/drive_service.py's
// folder-scoped query and the pack's google.golang.org/api dependency
// (estuary-flow); the drive/v3 service construction itself follows that
// package's documented option.WithCredentialsFile entrypoint since the
// pack only exercises google.golang.org/api for GCS, not Drive.
type driveInbox struct {
	service  *drive.Service
	folderID string
}

func NewDriveInbox(ctx context.Context, serviceAccountFile, folderID string) (Inbox, error) {
	if folderID == "" {
		return nil, fmt.Errorf("objectstore: DRIVE_INBOX_FOLDER_ID must be configured")
	}

	service, err := drive.NewService(ctx, option.WithCredentialsFile(serviceAccountFile))
	if err != nil {
		return nil, fmt.Errorf("objectstore: create drive service: %w", err)
	}

	return &driveInbox{service: service, folderID: folderID}, nil
}

func (d *driveInbox) ListInbox(ctx context.Context) ([]model.InboxCandidate, error) {
	query := fmt.Sprintf(
		"'%s' in parents and trashed = false and (mimeType='image/jpeg' or mimeType='image/png' or mimeType='application/pdf')",
		d.folderID,
	)

	var candidates []model.InboxCandidate
	pageToken := ""
	for {
		call := d.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id,name,mimeType,size,modifiedTime)").
			PageSize(1000)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("objectstore: list drive files: %w", err)
		}

		for _, f := range result.Files {
			if !AllowedMimeTypes[f.MimeType] {
				continue
			}
			candidates = append(candidates, model.InboxCandidate{
				ID:         f.Id,
				Name:       f.Name,
				MimeType:   f.MimeType,
				Size:       f.Size,
				ModifiedAt: parseDriveTime(f.ModifiedTime),
			})
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return candidates, nil
}

func (d *driveInbox) Download(ctx context.Context, id, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create download dir: %w", err)
	}

	resp, err := d.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("objectstore: download drive file %q: %w", id, err)
	}
	defer resp.Body.Close()

	file, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("objectstore: create local file: %w", err)
	}
	defer file.Close()

	if _, err := file.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("objectstore: write downloaded file: %w", err)
	}
	return outPath, nil
}

// MoveToArchive is a no-op for Drive: the reference implementation only
// archives object-storage (R2) documents, leaving Drive files in place.
func (d *driveInbox) MoveToArchive(ctx context.Context, id string) (string, error) {
	return id, nil
}

func parseDriveTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}
