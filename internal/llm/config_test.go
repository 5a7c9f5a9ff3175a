package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Model(TaskHighlights))
	assert.Equal(t, "gemini-2.5-pro", cfg.Model(TaskResume))
	assert.Equal(t, "gemini-2.5-flash", cfg.Model(TaskCoverLetter))
	assert.Equal(t, "gemini-2.5-flash", cfg.Model("unknown"))
}

func TestWithModels(t *testing.T) {
	cfg := DefaultConfig()
	custom := cfg.WithModels(map[Task]string{TaskResume: "custom-model", TaskCoverLetter: ""})

	assert.Equal(t, "custom-model", custom.Model(TaskResume))
	assert.Equal(t, "gemini-2.5-flash", custom.Model(TaskCoverLetter), "empty override keeps the default")
	assert.Equal(t, "gemini-2.5-pro", cfg.Model(TaskResume), "original unchanged")
	assert.Equal(t, cfg.Temperature, custom.Temperature)
}

func TestValidate(t *testing.T) {
	empty := &Config{}
	assert.ErrorContains(t, empty.Validate(), "no model configured")

	fallbackOnly := &Config{Fallback: "m"}
	assert.NoError(t, fallbackOnly.Validate())

	hot := &Config{Fallback: "m", Temperature: 3}
	assert.ErrorContains(t, hot.Validate(), "temperature")

	negative := &Config{Fallback: "m", MaxRetries: -1}
	assert.Error(t, negative.Validate())
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"markdown fence", "```markdown\n# Jane\n\n- Go\n```", "# Jane\n\n- Go"},
		{"no fence", "  plain text \n", "plain text"},
		{"object on fence line", "```{\"a\": 1}```", `{"a": 1}`},
		{"unterminated", "```json\n{\"a\": 1}", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFence(tt.input))
		})
	}
}
