package presenter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	p := NewWithOptions(&out, &errOut, ColorNever)
	return p, &out, &errOut
}

func TestError(t *testing.T) {
	p, out, errOut := newTestPresenter()

	p.Error(errors.New("boom"), "adding skill")
	assert.Contains(t, errOut.String(), "[ERROR] adding skill: boom")
	assert.Empty(t, out.String())

	errOut.Reset()
	p.Error(errors.New("boom"), "")
	assert.Contains(t, errOut.String(), "[ERROR] boom")

	// A nil error prints nothing.
	errOut.Reset()
	p.Error(nil, "context")
	assert.Empty(t, errOut.String())
}

func TestMessages(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Success("skill added")
	assert.Contains(t, out.String(), "✓ skill added")

	out.Reset()
	p.Warning("skill drifted")
	assert.Contains(t, out.String(), "⚠ skill drifted")

	out.Reset()
	p.Info("just a note")
	assert.Equal(t, "just a note\n", out.String())

	out.Reset()
	p.Section("Diagnostics")
	assert.Contains(t, out.String(), "Diagnostics\n-----------")
}

func TestQuietMode(t *testing.T) {
	p, out, errOut := newTestPresenter()
	p.SetQuiet(true)
	assert.True(t, p.IsQuiet())

	p.Success("hidden")
	p.Warning("hidden")
	p.Info("hidden")
	p.Section("hidden")
	p.Separator()
	assert.Empty(t, out.String())

	// Errors are never suppressed.
	p.Error(errors.New("boom"), "")
	assert.Contains(t, errOut.String(), "boom")
}

func TestPrompt(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.input = strings.NewReader("y\n")

	response := p.Prompt("Proceed with cleanup?", "y", "N")
	assert.Equal(t, "y", response)
	assert.Contains(t, out.String(), "Proceed with cleanup? [y/N]: ")
}
