package draft

import (
	"time"

	"github.com/mx-space/drafts/internal/models"
)

// DocumentInfo is what the host document store reports about a document.
type DocumentInfo struct {
	Ref string
	// LatestRevisionAt is nil for a page that has never been published.
	LatestRevisionAt *time.Time
}

// IsStale reports whether the document was published again after the draft's edit
// session began. It is advisory and never blocks loading or saving.
func IsStale(d *models.DraftModel, doc *DocumentInfo) bool {
	if d == nil || doc == nil || doc.LatestRevisionAt == nil {
		return false
	}
	return doc.LatestRevisionAt.After(d.CaptureStartTime)
}
