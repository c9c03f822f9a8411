package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mx-space/drafts/internal/pkg/formpath"
)

// DraftKind tags the shape of a draft's content.
type DraftKind string

const (
	DraftKindText DraftKind = "text"
	DraftKindForm DraftKind = "form"
)

// DraftContent is either raw text or a flattened structured form.
type DraftContent struct {
	Text string
	Form *formpath.Node
}

// TextContent wraps a plain text body.
func TextContent(text string) DraftContent { return DraftContent{Text: text} }

// FormContent wraps a flattened form tree.
func FormContent(form *formpath.Node) DraftContent {
	if form == nil {
		form = formpath.NewNode()
	}
	return DraftContent{Form: form}
}

func (c DraftContent) IsStructured() bool { return c.Form != nil }

func (c DraftContent) Kind() DraftKind {
	if c.IsStructured() {
		return DraftKindForm
	}
	return DraftKindText
}

type draftContentJSON struct {
	Kind DraftKind      `json:"kind"`
	Text *string        `json:"text,omitempty"`
	Form *formpath.Node `json:"form,omitempty"`
}

func (c DraftContent) MarshalJSON() ([]byte, error) {
	if c.IsStructured() {
		return json.Marshal(draftContentJSON{Kind: DraftKindForm, Form: c.Form})
	}
	text := c.Text
	return json.Marshal(draftContentJSON{Kind: DraftKindText, Text: &text})
}

func (c *DraftContent) UnmarshalJSON(data []byte) error {
	var raw draftContentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case DraftKindForm:
		*c = FormContent(raw.Form)
	case DraftKindText, "":
		*c = DraftContent{}
		if raw.Text != nil {
			c.Text = *raw.Text
		}
	default:
		return fmt.Errorf("models.DraftContent: unknown kind %q", raw.Kind)
	}
	return nil
}

// DraftModel is one persisted work-in-progress snapshot of an edit. Saves replace the
// row in place; there is no history of earlier states.
type DraftModel struct {
	ID                 uint64       `json:"id"                   gorm:"primaryKey;autoIncrement"`
	OwnerID            string       `json:"owner_id"             gorm:"type:char(36);not null;index:idx_drafts_owner_document,priority:1"`
	DocumentRef        *string      `json:"document_ref"         gorm:"size:255;index;index:idx_drafts_owner_document,priority:2"`
	SectionRef         *string      `json:"section_ref"          gorm:"size:64"`
	CaptureStartTime   time.Time    `json:"capture_start_time"`
	SourceRevisionTime *time.Time   `json:"source_revision_time"`
	SavedAt            time.Time    `json:"saved_at"             gorm:"index"`
	ScrollPosition     int          `json:"scroll_position"      gorm:"default:0"`
	Content            DraftContent `json:"content"              gorm:"type:longtext;serializer:json"`
	Summary            string       `json:"summary"              gorm:"size:255"`
	IsMinorEdit        bool         `json:"is_minor_edit"        gorm:"default:false"`
	OwnerToken         string       `json:"owner_token"          gorm:"size:32"`
	CreatedAt          time.Time    `json:"created"`
}

func (DraftModel) TableName() string { return "drafts" }

// Ref returns the document ref, or "" when the draft has none yet.
func (d *DraftModel) Ref() string {
	if d == nil || d.DocumentRef == nil {
		return ""
	}
	return *d.DocumentRef
}

// DeepCopy returns a copy sharing no pointers with d.
func (d *DraftModel) DeepCopy() *DraftModel {
	if d == nil {
		return nil
	}
	out := *d
	out.DocumentRef = copyString(d.DocumentRef)
	out.SectionRef = copyString(d.SectionRef)
	if d.SourceRevisionTime != nil {
		t := *d.SourceRevisionTime
		out.SourceRevisionTime = &t
	}
	out.Content.Form = d.Content.Form.Clone()
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
