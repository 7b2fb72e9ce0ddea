package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"trellis/api/internal/entity"
)

// ModuleSource loads the canonical module to export. A nil module with a
// nil error means the module does not exist.
type ModuleSource interface {
	GetModule(ctx context.Context, id string) (*entity.Module, error)
}

// Service renders module summaries.
type Service struct {
	source ModuleSource
}

// NewService creates an export service.
func NewService(source ModuleSource) *Service {
	return &Service{source: source}
}

// Export generates a module summary in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	mod, err := s.source.GetModule(ctx, req.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("get module: %w", err)
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: module %s", ErrContentUnavailable, req.ModuleID)
	}

	data := buildTemplateData(*mod)

	html, err := RenderModuleHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(ctx, html, data.Title)
	case FormatDOCX:
		return exportDOCX(ctx, html, data.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func buildTemplateData(mod entity.Module) TemplateData {
	data := TemplateData{
		Title:           mod.Title,
		Status:          mod.Status,
		Source:          string(mod.Source),
		ImageURL:        mod.ImageURL,
		DescriptionHTML: template.HTML(BodyToHTML(mod.Description)),
		GeneratedAt:     time.Now().UTC(),
	}
	if data.Title == "" {
		data.Title = mod.ID
	}

	if mod.Ledger != nil {
		data.Author = mod.Ledger.CreatedBy
		data.Reward = mod.Ledger.Reward
		data.CreatedAt = mod.Ledger.CreatedAt
	}

	lessons := make(map[int]entity.Lesson, len(mod.Lessons))
	for _, lesson := range mod.Lessons {
		lessons[lesson.SLTIndex] = lesson
	}

	for _, slt := range mod.SLTs {
		ts := TemplateSLT{Index: slt.Index, Text: slt.Text}
		if lesson, ok := lessons[slt.Index]; ok {
			ts.Lesson = &TemplateLesson{
				Title:    lesson.Title,
				BodyHTML: template.HTML(BodyToHTML(lesson.Body)),
				VideoURL: lesson.VideoURL,
			}
		}
		data.SLTs = append(data.SLTs, ts)
	}

	if mod.Intro != nil {
		data.Intro = &TemplateIntro{
			BodyHTML: template.HTML(BodyToHTML(mod.Intro.Body)),
			VideoURL: mod.Intro.VideoURL,
		}
	}

	if mod.Assignment != nil {
		data.Assignment = &TemplateAssignment{
			Title:    mod.Assignment.Title,
			BodyHTML: template.HTML(BodyToHTML(mod.Assignment.Body)),
			URL:      mod.Assignment.URL,
		}
	}

	return data
}
