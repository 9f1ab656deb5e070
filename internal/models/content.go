package models

import "time"

// ChecklistItem is a catalog entry of the preparation checklist.
type ChecklistItem struct {
	ID          string `json:"id" yaml:"id"`
	Category    string `json:"category" yaml:"category"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Position    int    `json:"position" yaml:"position"`
}

// ChecklistEntry is a catalog item joined with the user's progress on it.
type ChecklistEntry struct {
	ChecklistItem
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Module is an educational module made of lessons.
type Module struct {
	ID       string   `json:"id" yaml:"id"`
	Slug     string   `json:"slug" yaml:"slug"`
	Title    string   `json:"title" yaml:"title"`
	Summary  string   `json:"summary" yaml:"summary"`
	Position int      `json:"position" yaml:"position"`
	Lessons  []Lesson `json:"lessons,omitempty" yaml:"lessons"`
}

// Lesson is one page of a module. Body is markdown.
type Lesson struct {
	ID          string     `json:"id" yaml:"id"`
	ModuleID    string     `json:"module_id" yaml:"-"`
	Title       string     `json:"title" yaml:"title"`
	Body        string     `json:"body" yaml:"body"`
	HTML        string     `json:"html,omitempty" yaml:"-"`
	Position    int        `json:"position" yaml:"position"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
}

// ModuleProgress counts completed lessons of a module for one user.
type ModuleProgress struct {
	Module
	LessonsTotal int `json:"lessons_total"`
	LessonsDone  int `json:"lessons_done"`
}

// ModuleNote is the free-text note a user keeps for a module.
type ModuleNote struct {
	UserID    string    `json:"-"`
	ModuleID  string    `json:"module_id"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiscussionPrompt is a catalog question for the couple to talk through.
type DiscussionPrompt struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Question string `json:"question" yaml:"question"`
	Position int    `json:"position" yaml:"position"`
}

// DiscussionNote is the user's note and discussed flag for a prompt.
type DiscussionNote struct {
	UserID    string    `json:"-"`
	PromptID  string    `json:"prompt_id"`
	Body      string    `json:"body"`
	Discussed bool      `json:"discussed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptEntry is a prompt joined with the user's note, if any.
type PromptEntry struct {
	DiscussionPrompt
	Note *DiscussionNote `json:"note,omitempty"`
}

// Resource is a catalog link to external reading or media.
type Resource struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	Kind        string `json:"kind" yaml:"kind"`
	Description string `json:"description" yaml:"description"`
	Favorite    bool   `json:"favorite" yaml:"-"`
}
