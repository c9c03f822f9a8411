package draft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/pkg/formpath"
)

// draftID accepts an integer, a numeric string, or null. Zero means no draft yet.
type draftID uint64

func (id *draftID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*id = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid draftId %s", data)
	}
	*id = draftID(v)
	return nil
}

// SaveDraftDTO is the body of POST /drafts/save.
type SaveDraftDTO struct {
	DraftToken         string           `json:"draftToken"`
	EditSessionToken   string           `json:"editSessionToken"`
	DraftID            draftID          `json:"draftId"`
	DocumentRef        *string          `json:"documentRef"`
	SectionRef         *string          `json:"sectionRef"`
	CaptureStartTime   *time.Time       `json:"captureStartTime"`
	SourceRevisionTime *time.Time       `json:"sourceRevisionTime"`
	ScrollPosition     int              `json:"scrollPosition"`
	Content            json.RawMessage  `json:"content"`
	Fields             []formpath.Field `json:"fields"`
	SummaryText        string           `json:"summaryText"`
	IsMinorEdit        bool             `json:"isMinorEdit"`
	IsStructuredForm   bool             `json:"isStructuredForm"`
}

// toRequest decodes content: a JSON string is the text body, an object is a
// pre-flattened form.
func (d *SaveDraftDTO) toRequest() (SaveRequest, error) {
	req := SaveRequest{
		DraftToken:         d.DraftToken,
		EditSessionToken:   d.EditSessionToken,
		DraftID:            uint64(d.DraftID),
		DocumentRef:        d.DocumentRef,
		SectionRef:         d.SectionRef,
		SourceRevisionTime: d.SourceRevisionTime,
		ScrollPosition:     d.ScrollPosition,
		Fields:             d.Fields,
		Summary:            d.SummaryText,
		IsMinorEdit:        d.IsMinorEdit,
		IsStructuredForm:   d.IsStructuredForm,
	}
	if d.CaptureStartTime != nil {
		req.CaptureStartTime = *d.CaptureStartTime
	}

	content := bytes.TrimSpace(d.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '"':
		if err := json.Unmarshal(content, &req.Text); err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
		}
	case content[0] == '{':
		form := formpath.NewNode()
		if err := json.Unmarshal(content, form); err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
		}
		req.Form = form
		req.IsStructuredForm = true
	default:
		return req, fmt.Errorf("%w: content must be a string or an object", ErrInvalidDraft)
	}
	return req, nil
}

type saveResponse struct {
	ID uint64 `json:"id"`
}

// Response is a draft as GET /drafts/:id returns it.
type Response struct {
	ID                 uint64               `json:"id"`
	OwnerID            string               `json:"owner_id"`
	DocumentRef        *string              `json:"document_ref"`
	SectionRef         *string              `json:"section_ref"`
	CaptureStartTime   time.Time            `json:"capture_start_time"`
	SourceRevisionTime *time.Time           `json:"source_revision_time"`
	SavedAt            time.Time            `json:"saved_at"`
	ScrollPosition     int                  `json:"scroll_position"`
	Content            *models.DraftContent `json:"content,omitempty"`
	Summary            string               `json:"summary"`
	IsMinorEdit        bool                 `json:"is_minor_edit"`
	OwnerToken         string               `json:"owner_token,omitempty"`
	Stale              bool                 `json:"stale"`
	Created            time.Time            `json:"created"`
}

// toResponse renders a view for viewerID. Content and the owner token of someone
// else's draft are left out.
func toResponse(v *View, viewerID string) Response {
	d := &v.Draft
	out := Response{
		ID:                 d.ID,
		OwnerID:            d.OwnerID,
		DocumentRef:        d.DocumentRef,
		SectionRef:         d.SectionRef,
		CaptureStartTime:   d.CaptureStartTime,
		SourceRevisionTime: d.SourceRevisionTime,
		SavedAt:            d.SavedAt,
		ScrollPosition:     d.ScrollPosition,
		Summary:            d.Summary,
		IsMinorEdit:        d.IsMinorEdit,
		Stale:              v.Stale,
		Created:            d.CreatedAt,
	}
	if d.OwnerID == viewerID {
		content := d.Content
		out.Content = &content
		out.OwnerToken = d.OwnerToken
	}
	return out
}

func toResponses(views []View, viewerID string) []Response {
	out := make([]Response, len(views))
	for i := range views {
		out[i] = toResponse(&views[i], viewerID)
	}
	return out
}
