package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullData() map[string]string {
	return map[string]string{
		"JobTitle":    "Go Engineer",
		"CompanyName": "Acme",
		"Highlights":  "- Go",
		"Description": "Build services.",
		"Profile":     "Jane Doe",
	}
}

func TestNames(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	assert.Equal(t, []string{CoverLetter, JobHighlights, TailoredResume}, names)
}

func TestRender(t *testing.T) {
	out, err := Render(TailoredResume, fullData())
	require.NoError(t, err)
	assert.Contains(t, out, "Job: Go Engineer at Acme")
	assert.Contains(t, out, "Jane Doe")
	assert.NotContains(t, out, "{{")

	out, err = Render(JobHighlights, fullData())
	require.NoError(t, err)
	assert.Contains(t, out, "\"\"\"\nBuild services.\n\"\"\"")
}

func TestRender_MissingKey(t *testing.T) {
	data := fullData()
	delete(data, "Profile")

	_, err := Render(CoverLetter, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Profile")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render("thank-you-note", fullData())
	assert.ErrorContains(t, err, "not found")
}

func TestParse_Errors(t *testing.T) {
	_, err := parse([]byte("not json"))
	assert.ErrorContains(t, err, "failed to parse prompt file")

	_, err = parse([]byte(`{"broken": "{{.Name"}`))
	assert.ErrorContains(t, err, `prompt "broken"`)
}

func TestExecute_ValuesAreNotEscaped(t *testing.T) {
	set, err := parse([]byte(`{"t": "Hello {{.Name}}"}`))
	require.NoError(t, err)

	out, err := execute(set, "t", map[string]string{"Name": "<Jane & Co>"})
	require.NoError(t, err)
	assert.Equal(t, "Hello <Jane & Co>", out)
}
