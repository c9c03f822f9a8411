package models

// OptionModel is a key-value row. Per-user preferences use keys of the form
// "<preference>:<user id>".
type OptionModel struct {
	ID    uint   `json:"-"     gorm:"primaryKey;autoIncrement"`
	Name  string `json:"name"  gorm:"size:191;uniqueIndex;not null"`
	Value string `json:"value" gorm:"type:longtext"` // JSON-encoded
}

func (OptionModel) TableName() string { return "options" }
