// Package objectstore lists, downloads, and archives inbound documents from
// whichever object-storage backend the deployment is configured for.
package objectstore

import (
	"context"

	"github.com/ledgerflow/ingestor/internal/model"
)

// Inbox lists, downloads, and archives candidate documents. Backends filter
// by an allowed mime-type set and paginate internally; ListInbox returns the
// full, already-filtered candidate set for one poll cycle.
type Inbox interface {
	ListInbox(ctx context.Context) ([]model.InboxCandidate, error)
	Download(ctx context.Context, id, outPath string) (string, error)
	MoveToArchive(ctx context.Context, id string) (string, error)
}

// AllowedMimeTypes is the default filter set, overridable via the
// ALLOWED_MIME_TYPES environment variable.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}
