package models

import "time"

// PageModel is a published wiki page. Title is the document ref drafts point at.
type PageModel struct {
	Base
	Title            string     `json:"title"              gorm:"size:255;uniqueIndex;not null"`
	Text             string     `json:"text"               gorm:"type:longtext"`
	LatestRevisionAt *time.Time `json:"latest_revision_at"`
	RevisionCount    int        `json:"revision_count"     gorm:"default:0"`
}

func (PageModel) TableName() string { return "pages" }

// PageRevisionModel is an immutable published version of a page.
type PageRevisionModel struct {
	Base
	PageID      string    `json:"page_id"       gorm:"type:char(36);index;not null"`
	AuthorID    string    `json:"author_id"     gorm:"type:char(36);index"`
	Text        string    `json:"text"          gorm:"type:longtext"`
	Summary     string    `json:"summary"`
	IsMinorEdit bool      `json:"is_minor_edit"`
	DraftID     *uint64   `json:"draft_id"`
	PublishedAt time.Time `json:"published_at"  gorm:"index"`
}

func (PageRevisionModel) TableName() string { return "page_revisions" }
