// Package llm wraps the Gemini text models used to write application documents.
package llm

import "fmt"

// Task names a generation step; each task can run on its own model
type Task string

const (
	// TaskHighlights pulls requirements and duties out of a job description
	TaskHighlights Task = "highlights"
	// TaskResume rewrites the candidate's resume for one job
	TaskResume Task = "resume"
	// TaskCoverLetter writes the cover letter from the tailored resume
	TaskCoverLetter Task = "cover_letter"
)

// Config selects a model per task
type Config struct {
	Models map[Task]string
	// Fallback serves tasks with no model of their own
	Fallback    string
	Temperature float32
	// MaxRetries bounds retries of rate-limited or unavailable responses
	MaxRetries int
}

// DefaultConfig returns the Gemini models used when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		Models: map[Task]string{
			TaskHighlights:  "gemini-2.5-flash-lite",
			TaskResume:      "gemini-2.5-pro",
			TaskCoverLetter: "gemini-2.5-flash",
		},
		Fallback:    "gemini-2.5-flash",
		Temperature: 0.2,
		MaxRetries:  2,
	}
}

// WithModels returns a copy of c with non-empty overrides applied
func (c *Config) WithModels(overrides map[Task]string) *Config {
	out := &Config{
		Models:      make(map[Task]string, len(c.Models)),
		Fallback:    c.Fallback,
		Temperature: c.Temperature,
		MaxRetries:  c.MaxRetries,
	}
	for task, model := range c.Models {
		out.Models[task] = model
	}
	for task, model := range overrides {
		if model != "" {
			out.Models[task] = model
		}
	}
	return out
}

// Model returns the model for task
func (c *Config) Model(task Task) string {
	if model := c.Models[task]; model != "" {
		return model
	}
	return c.Fallback
}

// Validate checks that every known task resolves to a model
func (c *Config) Validate() error {
	for _, task := range []Task{TaskHighlights, TaskResume, TaskCoverLetter} {
		if c.Model(task) == "" {
			return fmt.Errorf("no model configured for %s", task)
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	return nil
}
