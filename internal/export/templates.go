package export

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/module.html
var moduleTemplateSource string

var moduleTemplate = template.Must(template.New("module").
	Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string { return t.Format(layout) },
	}).
	Parse(moduleTemplateSource))

// RenderModuleHTML fills the module summary template. The same HTML feeds
// both the PDF and the DOCX pipelines.
func RenderModuleHTML(data TemplateData) (string, error) {
	out := &bytes.Buffer{}
	if err := moduleTemplate.Execute(out, data); err != nil {
		return "", fmt.Errorf("render module template: %w", err)
	}
	return out.String(), nil
}

// TemplateData is the fully assembled module summary handed to the template.
// Rich-text bodies arrive pre-rendered; the template treats them as trusted.
type TemplateData struct {
	Title           string
	Status          string
	Source          string
	Author          string
	Reward          int64
	ImageURL        string
	DescriptionHTML template.HTML
	SLTs            []TemplateSLT
	Intro           *TemplateIntro
	Assignment      *TemplateAssignment
	CreatedAt       time.Time
	GeneratedAt     time.Time
}

// TemplateSLT pairs a learning target with its lesson, when one exists.
type TemplateSLT struct {
	Index  int
	Text   string
	Lesson *TemplateLesson
}

type TemplateLesson struct {
	Title    string
	BodyHTML template.HTML
	VideoURL string
}

type TemplateIntro struct {
	BodyHTML template.HTML
	VideoURL string
}

type TemplateAssignment struct {
	Title    string
	BodyHTML template.HTML
	URL      string
}
