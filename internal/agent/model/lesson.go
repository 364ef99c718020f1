package model

import (
	"time"
)

// LessonRequest is the input of one pipeline run.
type LessonRequest struct {
	LessonID       string `json:"lesson_id"`
	CourseTitle    string `json:"course_title,omitempty"`
	ModuleTitle    string `json:"module_title,omitempty"`
	LessonTitle    string `json:"lesson_title"`
	Outline        string `json:"outline"`
	ConversationID string `json:"-"`
}

// ScriptSection is one ordered block of narration script for a lesson.
type ScriptSection struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	LessonID  string    `json:"lesson_id" gorm:"size:36;not null;uniqueIndex:idx_section_lesson_order"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Order     int       `json:"order" gorm:"column:section_order;not null;uniqueIndex:idx_section_lesson_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScriptDraft is the structured payload of the script generation call.
type ScriptDraft struct {
	Sections []ScriptSectionDraft `json:"sections" jsonschema:"minItems=1" jsonschema_description:"Ordered narration sections covering the outline."`
}

type ScriptSectionDraft struct {
	Order   int    `json:"order" jsonschema:"minimum=1" jsonschema_description:"1-based position of the section in the lesson."`
	Content string `json:"content" jsonschema:"minLength=1" jsonschema_description:"Narration text of the section."`
}

type VisualType string

const (
	VisualStockVideo     VisualType = "stockVideo"
	VisualGeneratedImage VisualType = "generatedImage"
	VisualTitleCard      VisualType = "titleCard"
)

type Visual struct {
	Type        VisualType `json:"type"`
	SearchQuery string     `json:"searchQuery"`
}

// StoryboardScene pairs narration text with a visual directive.
type StoryboardScene struct {
	SceneNumber int     `json:"sceneNumber"`
	AudioText   string  `json:"audioText"`
	Visual      Visual  `json:"visual"`
	TextOverlay *string `json:"textOverlay"`
}

// Storyboard is the structured payload of the storyboard generation call.
type Storyboard struct {
	Scenes []StoryboardScene `json:"scenes"`
}

// ScriptInput is the user input of the storyboard call.
type ScriptInput struct {
	LessonTitle string `json:"lesson_title"`
	Script      string `json:"script"`
}

// Course, Module and Lesson form the persisted lesson tree.
type Course struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Module struct {
	ID        string `gorm:"primaryKey;size:36"`
	CourseID  string `gorm:"size:36;index;not null"`
	Title     string `gorm:"not null"`
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Lesson struct {
	ID        string `gorm:"primaryKey;size:36"`
	ModuleID  string `gorm:"size:36;index;not null"`
	Title     string `gorm:"not null"`
	Outline   string `gorm:"type:text"`
	VideoRef  string
	Status    string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
