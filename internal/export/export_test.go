package export

import (
	"context"
	"encoding/base64"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"

	"trellis/api/internal/entity"
)

func TestBodyToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "simple paragraph",
			input:    "Hello world",
			expected: "<p>Hello world</p>",
		},
		{
			name:     "line break inside paragraph",
			input:    "Line one\nLine two",
			expected: "Line one<br>",
		},
		{
			name:     "blank line splits paragraphs",
			input:    "Para one\n\nPara two",
			expected: "<p>Para two</p>",
		},
		{
			name:     "dash bullets",
			input:    "- First\n- Second",
			expected: "<li>First</li>",
		},
		{
			name:     "star bullets",
			input:    "* starred",
			expected: "<li>starred</li>",
		},
		{
			name:     "html is escaped",
			input:    "a < b & <script>",
			expected: "a &lt; b &amp; &lt;script&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strings.TrimSpace(BodyToHTML(tt.input))
			expected := strings.TrimSpace(tt.expected)
			if !strings.Contains(result, expected) {
				t.Errorf("BodyToHTML() = %v, want %v", result, expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "Hello World", want: "Hello-World"},
		{in: "Intro to X v1.2", want: "Intro-to-X-v12"},
		{in: "Special!@#$%Chars", want: "SpecialChars"},
		{in: "--weird -- input--", want: "weird-input"},
		{in: "", want: "module-summary"},
		{in: "!!!", want: "module-summary"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := sanitizeFilename(tc.in); got != tc.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	got := sanitizeFilename(strings.Repeat("ab ", 40))
	want := strings.TrimSuffix(strings.Repeat("ab-", 20), "-")
	if got != want {
		t.Errorf("sanitizeFilename(long) = %q, want %q", got, want)
	}
	if len(got) > 60 {
		t.Errorf("sanitized name is %d bytes, want at most 60", len(got))
	}
}

func TestHTMLDataURL(t *testing.T) {
	const doc = "<p>café & bits</p>"
	url := htmlDataURL(doc)

	const prefix = "data:text/html;charset=utf-8;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("data URL missing prefix: %s", url)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("data URL payload is not valid base64: %v", err)
	}
	if string(decoded) != doc {
		t.Errorf("decoded payload = %q, want %q", decoded, doc)
	}
}

func TestBuildTemplateDataNestsLessons(t *testing.T) {
	mod := entity.Module{
		ID:     "h1",
		Source: entity.SourceMerged,
		Status: "APPROVED",
		Title:  "Intro to X",
		SLTs: []entity.SLT{
			{Index: 0, Text: "explain the basics"},
			{Index: 1, Text: "apply the rules"},
		},
		Lessons: []entity.Lesson{
			{SLTIndex: 1, Title: "Applying rules", Body: "Watch and practice."},
		},
		Ledger: &entity.LedgerPayload{
			CreatedBy: "avery",
			Reward:    10,
			CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	data := buildTemplateData(mod)

	if data.Title != "Intro to X" {
		t.Errorf("expected title Intro to X, got %s", data.Title)
	}
	if data.Author != "avery" || data.Reward != 10 {
		t.Errorf("ledger fields not carried: author=%s reward=%d", data.Author, data.Reward)
	}
	if len(data.SLTs) != 2 {
		t.Fatalf("expected 2 slts, got %d", len(data.SLTs))
	}
	if data.SLTs[0].Lesson != nil {
		t.Error("slt 0 has no lesson, got one")
	}
	if data.SLTs[1].Lesson == nil || data.SLTs[1].Lesson.Title != "Applying rules" {
		t.Errorf("slt 1 lesson not attached: %+v", data.SLTs[1].Lesson)
	}
}

func TestBuildTemplateDataFallsBackToID(t *testing.T) {
	data := buildTemplateData(entity.Module{ID: "h9", Status: "APPROVED"})
	if data.Title != "h9" {
		t.Errorf("expected id as title, got %s", data.Title)
	}
}

func TestRenderModuleHTML(t *testing.T) {
	data := TemplateData{
		Title:           "Intro to X",
		Status:          "APPROVED",
		Source:          "merged",
		Author:          "avery",
		DescriptionHTML: template.HTML("<p>Learn the basics.</p>"),
		SLTs: []TemplateSLT{
			{
				Index: 0,
				Text:  "explain the basics",
				Lesson: &TemplateLesson{
					Title:    "Basics walkthrough",
					BodyHTML: template.HTML("<p>Start here.</p>"),
				},
			},
		},
		Assignment: &TemplateAssignment{
			Title:    "Final project",
			BodyHTML: template.HTML("<p>Build something.</p>"),
		},
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	html, err := RenderModuleHTML(data)
	if err != nil {
		t.Fatalf("RenderModuleHTML() error = %v", err)
	}

	if !strings.Contains(html, "Intro to X") {
		t.Error("HTML missing title")
	}
	if !strings.Contains(html, "explain the basics") {
		t.Error("HTML missing SLT text")
	}
	if !strings.Contains(html, "Basics walkthrough") {
		t.Error("HTML missing lesson title")
	}
	if !strings.Contains(html, "Final project") {
		t.Error("HTML missing assignment")
	}

	// Verify that pre-rendered body HTML is NOT escaped
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("body HTML was escaped - should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>Learn the basics.</p>") {
		t.Error("body HTML should contain unescaped <p> tags")
	}
}

type fakeModuleSource struct {
	getModule func(ctx context.Context, id string) (*entity.Module, error)
}

func (f *fakeModuleSource) GetModule(ctx context.Context, id string) (*entity.Module, error) {
	return f.getModule(ctx, id)
}

func TestExportMissingModule(t *testing.T) {
	svc := NewService(&fakeModuleSource{
		getModule: func(ctx context.Context, id string) (*entity.Module, error) {
			return nil, nil
		},
	})

	_, err := svc.Export(context.Background(), Request{ModuleID: "h404", Format: FormatPDF})
	if !errors.Is(err, ErrContentUnavailable) {
		t.Errorf("expected ErrContentUnavailable, got %v", err)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeModuleSource{
		getModule: func(ctx context.Context, id string) (*entity.Module, error) {
			return &entity.Module{ID: id, Title: "Intro to X", Status: "APPROVED"}, nil
		},
	})

	_, err := svc.Export(context.Background(), Request{ModuleID: "h1", Format: "xlsx"})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}
