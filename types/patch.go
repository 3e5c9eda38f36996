package types

import "time"

// FieldUpdate records what a partial update intends to do with one field:
// leave it unchanged or set it to a value.
type FieldUpdate[T any] struct {
	set   bool
	value T
}

// Unchanged returns an update that keeps the current value.
func Unchanged[T any]() FieldUpdate[T] {
	return FieldUpdate[T]{}
}

// SetTo returns an update that overwrites the current value with v.
func SetTo[T any](v T) FieldUpdate[T] {
	return FieldUpdate[T]{set: true, value: v}
}

// IsSet reports whether the update overwrites the field.
func (u FieldUpdate[T]) IsSet() bool {
	return u.set
}

// Apply returns the field's value after the update.
func (u FieldUpdate[T]) Apply(current T) T {
	if u.set {
		return u.value
	}
	return current
}

// PressKitPatch is the set of owner-editable press kit fields. Slug, owner,
// view count and creation time are deliberately absent.
type PressKitPatch struct {
	Title           FieldUpdate[string]
	TemplateID      FieldUpdate[string]
	PrimaryColor    FieldUpdate[string]
	SecondaryColor  FieldUpdate[string]
	FontChoice      FieldUpdate[string]
	CustomCSS       FieldUpdate[string]
	MetaDescription FieldUpdate[string]
	IsPublished     FieldUpdate[bool]
}

// ApplyTo returns kit with the patch applied and UpdatedAt set to now.
// UpdatedAt never moves before CreatedAt.
func (p PressKitPatch) ApplyTo(kit PressKit, now time.Time) PressKit {
	kit.Title = p.Title.Apply(kit.Title)
	kit.TemplateID = p.TemplateID.Apply(kit.TemplateID)
	kit.PrimaryColor = p.PrimaryColor.Apply(kit.PrimaryColor)
	kit.SecondaryColor = p.SecondaryColor.Apply(kit.SecondaryColor)
	kit.FontChoice = p.FontChoice.Apply(kit.FontChoice)
	kit.CustomCSS = p.CustomCSS.Apply(kit.CustomCSS)
	kit.MetaDescription = p.MetaDescription.Apply(kit.MetaDescription)
	kit.IsPublished = p.IsPublished.Apply(kit.IsPublished)

	if now.Before(kit.CreatedAt) {
		now = kit.CreatedAt
	}
	kit.UpdatedAt = now
	return kit
}
