package types

import (
	"regexp"
	"strings"
	"time"
)

// Style defaults applied when a press kit is created without them.
const (
	DefaultPrimaryColor   = "#3f51b5"
	DefaultSecondaryColor = "#f50057"
	DefaultFontChoice     = "Roboto"
)

// PressKit is an electronic press kit owned by a single user.
type PressKit struct {
	// ID is the unique identifier of the press kit.
	ID string `json:"id" db:"id"`

	// UserID references the owning user. It never changes after creation.
	UserID string `json:"user_id" db:"user_id"`

	Title string `json:"title" db:"title"`

	// Slug is derived from Title when the press kit is created and is
	// unique within the owner's press kits. Later title edits keep it.
	Slug string `json:"slug" db:"slug"`

	// TemplateID references an entry in the external template catalog.
	TemplateID string `json:"template_id" db:"template_id"`

	PrimaryColor    string `json:"primary_color" db:"primary_color"`
	SecondaryColor  string `json:"secondary_color" db:"secondary_color"`
	FontChoice      string `json:"font_choice" db:"font_choice"`
	CustomCSS       string `json:"custom_css" db:"custom_css"`
	MetaDescription string `json:"meta_description" db:"meta_description"`

	IsPublished bool `json:"is_published" db:"is_published"`

	// ViewCount only grows, and only through recorded views.
	ViewCount int64 `json:"view_count" db:"view_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PressKitSummary is the list projection of a press kit.
type PressKitSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	IsPublished bool      `json:"is_published"`
	ViewCount   int64     `json:"view_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary projects the press kit for list responses.
func (p PressKit) Summary() PressKitSummary {
	return PressKitSummary{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		IsPublished: p.IsPublished,
		ViewCount:   p.ViewCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ApplyDefaults fills unset style fields with the catalog defaults.
func (p *PressKit) ApplyDefaults() {
	if p.PrimaryColor == "" {
		p.PrimaryColor = DefaultPrimaryColor
	}
	if p.SecondaryColor == "" {
		p.SecondaryColor = DefaultSecondaryColor
	}
	if p.FontChoice == "" {
		p.FontChoice = DefaultFontChoice
	}
}

var (
	slugStripPattern = regexp.MustCompile(`[^\w ]+`)
	slugSpacePattern = regexp.MustCompile(` +`)
)

// Slugify lowercases title, drops everything but ASCII word characters and
// spaces, then joins the remaining runs of spaces with a single hyphen.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStripPattern.ReplaceAllString(slug, "")
	return slugSpacePattern.ReplaceAllString(slug, "-")
}
