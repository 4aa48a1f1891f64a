package bubbletea_test

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jcodehq/jcode"
	bt "github.com/jcodehq/jcode/bubbletea"
	"github.com/stretchr/testify/require"
)

// newTestSession builds an empty session suitable for TUI tests.
func newTestSession() *jcode.Session {
	return jcode.NewSession("test-session", "/work")
}

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, run bt.AgentFunc) bt.Model {
	t.Helper()
	return initModelWithSize(t, run, 80, 24)
}

// initModelWithSize creates a model and sizes its viewport to w x h.
func initModelWithSize(t *testing.T, run bt.AgentFunc, w, h int) bt.Model {
	t.Helper()
	session := newTestSession()
	theme := jcode.DefaultTheme()
	m := bt.New(run, session, theme, bt.Config{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// updateModel sends msg to m and asserts the result is still a bt.Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// nopAgent is a mock agent that does nothing.
func nopAgent(_ context.Context, _ *jcode.Session, _ func(jcode.Event)) error {
	return nil
}
