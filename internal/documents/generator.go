// Package documents writes tailored application documents with an LLM and
// keeps the generated artifacts on disk.
package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/llm"
	"github.com/jonathan/applier/internal/prompts"
	"github.com/jonathan/applier/internal/types"
	"go.uber.org/zap"
)


// Highlights are the points of a job description an application should address
type Highlights struct {
	Requirements     []string `json:"requirements"`
	Responsibilities []string `json:"responsibilities"`
	NiceToHave       []string `json:"nice_to_have"`
}

// Generator produces a resume and cover letter for a job from the candidate's
// base profile
type Generator struct {
	client llm.Client
	logger *zap.Logger
}

var _ application.DocumentGenerator = (*Generator)(nil)

// NewGenerator creates a Generator backed by client
func NewGenerator(client llm.Client, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, logger: logger}
}

// Generate writes both documents. Highlights extraction is best effort; the
// documents are still written from the full description when it fails.
func (g *Generator) Generate(ctx context.Context, job *types.Job, profile string) (*application.Documents, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, &types.ErrValidation{Field: "profile", Message: "base resume is required"}
	}

	highlights, err := g.ExtractHighlights(ctx, job)
	if err != nil {
		g.logger.Warn("highlight extraction failed", zap.Stringer("job_id", job.ID), zap.Error(err))
		highlights = &Highlights{}
	}

	data := map[string]string{
		"JobTitle":    job.JobTitle,
		"CompanyName": job.CompanyName,
		"Highlights":  highlights.Markdown(),
		"Description": job.Description,
		"Profile":     profile,
	}

	resumePrompt, err := prompts.Render(prompts.TailoredResume, data)
	if err != nil {
		return nil, err
	}
	resume, err := g.generate(ctx, resumePrompt, llm.TaskResume, "resume")
	if err != nil {
		return nil, err
	}

	// the letter is grounded in the tailored resume, not the base profile
	data["Profile"] = resume
	letterPrompt, err := prompts.Render(prompts.CoverLetter, data)
	if err != nil {
		return nil, err
	}
	letter, err := g.generate(ctx, letterPrompt, llm.TaskCoverLetter, "cover letter")
	if err != nil {
		return nil, err
	}

	g.logger.Info("generated documents",
		zap.Stringer("job_id", job.ID),
		zap.Int("resume_chars", len(resume)),
		zap.Int("cover_letter_chars", len(letter)),
	)
	return &application.Documents{Resume: resume, CoverLetter: letter}, nil
}

// ExtractHighlights asks the model for the requirements and responsibilities of a job
func (g *Generator) ExtractHighlights(ctx context.Context, job *types.Job) (*Highlights, error) {
	text := job.Description
	if job.Requirements != nil {
		text += "\n\n" + *job.Requirements
	}

	prompt, err := prompts.Render(prompts.JobHighlights, map[string]string{
		"JobTitle":    job.JobTitle,
		"CompanyName": job.CompanyName,
		"Description": text,
	})
	if err != nil {
		return nil, err
	}
	raw, err := g.client.GenerateJSON(ctx, prompt, llm.TaskHighlights)
	if err != nil {
		return nil, fmt.Errorf("failed to extract job highlights: %w", err)
	}

	var h Highlights
	if err := json.Unmarshal([]byte(llm.StripFence(raw)), &h); err != nil {
		return nil, fmt.Errorf("failed to parse job highlights: %w", err)
	}
	return &h, nil
}

func (g *Generator) generate(ctx context.Context, prompt string, task llm.Task, what string) (string, error) {
	out, err := g.client.Generate(ctx, prompt, task)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", what, err)
	}
	out = llm.StripFence(out)
	if out == "" {
		return "", fmt.Errorf("failed to generate %s: empty response", what)
	}
	return out + "\n", nil
}

// Markdown renders the highlights as a bullet list
func (h *Highlights) Markdown() string {
	var b strings.Builder
	for _, group := range [][]string{h.Requirements, h.Responsibilities, h.NiceToHave} {
		for _, item := range group {
			item = strings.TrimSpace(item)
			if item != "" {
				b.WriteString("- ")
				b.WriteString(item)
				b.WriteString("\n")
			}
		}
	}
	if b.Len() == 0 {
		return "(see job description)"
	}
	return strings.TrimRight(b.String(), "\n")
}
