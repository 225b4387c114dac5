package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeForKey_RecognizesSupportedExtensions(t *testing.T) {
	assert.Equal(t, "image/jpeg", mimeTypeForKey("inbox/invoice-1.jpg"))
	assert.Equal(t, "image/png", mimeTypeForKey("inbox/receipt.png"))
	assert.Equal(t, "application/pdf", mimeTypeForKey("inbox/statement.pdf"))
}

func TestMimeTypeForKey_FallsBackToOctetStreamForUnknownExtensions(t *testing.T) {
	assert.Equal(t, "application/octet-stream", mimeTypeForKey("inbox/notes.unknownext"))
}

func TestAllowedMimeTypes_RejectsUnlistedType(t *testing.T) {
	assert.False(t, AllowedMimeTypes["application/octet-stream"])
	assert.True(t, AllowedMimeTypes["application/pdf"])
}

func TestR2Inbox_ImplementsInbox(t *testing.T) {
	var _ Inbox = (*r2Inbox)(nil)
}

func TestDriveInbox_ImplementsInbox(t *testing.T) {
	var _ Inbox = (*driveInbox)(nil)
}
