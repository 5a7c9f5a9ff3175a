package matching

import (
	"context"
	"strings"
	"sync"
)

// ResumeCache embeds the candidate's resume once per distinct text. Load is
// called on every Get so an edited resume file is picked up, re-embedded and
// from then on marks previously scored jobs stale.
type ResumeCache struct {
	engine *Engine
	load   func() (string, error)

	mu     sync.Mutex
	text   string
	resume Resume
}

// NewResumeCache creates a cache that reads resume text with load
func NewResumeCache(engine *Engine, load func() (string, error)) *ResumeCache {
	return &ResumeCache{engine: engine, load: load}
}

// Get returns the embedded resume, calling the provider only when the text changed
func (c *ResumeCache) Get(ctx context.Context) (Resume, error) {
	text, err := c.load()
	if err != nil {
		return Resume{}, err
	}
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume.Fingerprint != "" && text == c.text {
		return c.resume, nil
	}

	resume, err := c.engine.ResumeEmbedding(ctx, text)
	if err != nil {
		return Resume{}, err
	}
	c.text, c.resume = text, resume
	return resume, nil
}
