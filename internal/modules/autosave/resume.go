package autosave

import (
	"errors"

	"github.com/mx-space/drafts/internal/modules/draft"
)

var ErrNoContent = errors.New("draft carries no content")

// FormFromDraft restores the editor form saved in d: text or structured fields,
// summary, minor-edit flag, scroll position and the revision the draft was based on.
func FormFromDraft(d *draft.Response) (Form, error) {
	if d == nil || d.Content == nil {
		return Form{}, ErrNoContent
	}
	f := Form{
		CaptureStartTime: d.CaptureStartTime,
		ScrollPosition:   d.ScrollPosition,
		Summary:          d.Summary,
		IsMinorEdit:      d.IsMinorEdit,
	}
	if d.DocumentRef != nil {
		f.DocumentRef = *d.DocumentRef
	}
	if d.SectionRef != nil {
		f.SectionRef = *d.SectionRef
	}
	if d.SourceRevisionTime != nil {
		t := *d.SourceRevisionTime
		f.SourceRevisionTime = &t
	}
	if d.Content.IsStructured() {
		f.Structured = true
		f.Fields = d.Content.Form.Fields()
	} else {
		f.Text = d.Content.Text
	}
	return f, nil
}

// Resume starts a session on a stored draft, keeping its id and owner token. The
// session starts unchanged; the next edit saves back to the same draft.
func Resume(saver Saver, cfg Config, d *draft.Response, opts ...Option) (*Synchronizer, error) {
	form, err := FormFromDraft(d)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithForm(form), WithDraft(d.ID, d.OwnerToken)}, opts...)
	return New(saver, cfg, opts...), nil
}
