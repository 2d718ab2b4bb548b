package models

import "time"

type TemplateCategory string

const (
	CategoryAuthentication TemplateCategory = "authentication"
	CategoryTransaction    TemplateCategory = "transaction"
	CategoryMarketing      TemplateCategory = "marketing"
	CategorySystem         TemplateCategory = "system"
	CategoryCustom         TemplateCategory = "custom"
)

func (c TemplateCategory) Valid() bool {
	switch c {
	case CategoryAuthentication, CategoryTransaction, CategoryMarketing, CategorySystem, CategoryCustom:
		return true
	}
	return false
}

// DefaultTemplateLanguage is applied when a template is created without one.
const DefaultTemplateLanguage = "es"

// Template is a named, reusable subject/body pair with {{key}} placeholders.
type Template struct {
	ID          string           `json:"id"`
	TemplateID  string           `json:"templateId"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Type        Channel          `json:"type"`
	Category    TemplateCategory `json:"category"`
	Subject     string           `json:"subject,omitempty"`
	Content     string           `json:"content"`
	Language    string           `json:"language"`
	Variables   []string         `json:"variables"`
	IsActive    bool             `json:"isActive"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TemplatePatch carries the mutable fields of an update. Nil means unchanged.
type TemplatePatch struct {
	Description *string           `json:"description,omitempty"`
	Category    *TemplateCategory `json:"category,omitempty"`
	Subject     *string           `json:"subject,omitempty"`
	Content     *string           `json:"content,omitempty"`
	Language    *string           `json:"language,omitempty"`
	Variables   []string          `json:"variables,omitempty"`
	IsActive    *bool             `json:"isActive,omitempty"`
}

// Apply mutates t with every non-nil field of p.
func (p TemplatePatch) Apply(t *Template) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Content != nil {
		t.Content = *p.Content
	}
	if p.Language != nil {
		t.Language = *p.Language
	}
	if p.Variables != nil {
		t.Variables = p.Variables
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
}
