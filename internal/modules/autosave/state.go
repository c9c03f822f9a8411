package autosave

// State is where a draft session sits in the save lifecycle.
type State string

const (
	StateUnchanged State = "unchanged"
	StateChanged   State = "changed"
	StateSaving    State = "saving"
	StateSaved     State = "saved"
	StateError     State = "error"
)

// Field names an editor input the synchronizer watches.
type Field int

const (
	FieldText Field = iota
	FieldSummary
	FieldMinorEdit
	// FieldStructured covers any change, addition or removal in a structured form.
	FieldStructured
	// FieldScroll is captured at save time but never marks the session changed.
	FieldScroll
)

// Tracked reports whether an edit to f makes the draft dirty.
func (f Field) Tracked() bool {
	switch f {
	case FieldText, FieldSummary, FieldMinorEdit, FieldStructured:
		return true
	default:
		return false
	}
}

func (f Field) String() string {
	switch f {
	case FieldText:
		return "text"
	case FieldSummary:
		return "summary"
	case FieldMinorEdit:
		return "minor_edit"
	case FieldStructured:
		return "structured"
	case FieldScroll:
		return "scroll"
	default:
		return "unknown"
	}
}
