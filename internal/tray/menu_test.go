package tray

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pendrag/internal/config"
	"pendrag/internal/filter"
)

func TestMenuToggleSmooth(t *testing.T) {
	mgr, err := config.NewManagerAt(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	tr := New("pendrag", "test")
	m := NewMenu(tr, mgr)

	smooth := tr.lookup(m.smooth)
	require.NotNil(t, smooth)
	assert.True(t, smooth.Checkable)
	assert.False(t, smooth.Checked)

	on, err := m.ToggleSmooth()
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, mgr.Get().Filter.SmoothTransition)
	assert.True(t, smooth.Checked)

	reloaded, err := config.NewManagerAt(mgr.Path())
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.Get().Filter.SmoothTransition)

	on, err = m.ToggleSmooth()
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, smooth.Checked)
}

func TestMenuFollowsConfig(t *testing.T) {
	mgr, err := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	tr := New("pendrag", "test")
	m := NewMenu(tr, mgr)
	assert.Equal(t, "Drag threshold: 5 px", tr.lookup(m.threshold).Title)

	require.NoError(t, mgr.SetFilter(filter.Config{Threshold: 7.5, SmoothTransition: true}))
	assert.Equal(t, "Drag threshold: 7.5 px", tr.lookup(m.threshold).Title)
	assert.True(t, tr.lookup(m.smooth).Checked)
}

func TestMenuLayout(t *testing.T) {
	mgr, err := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	tr := New("pendrag", "test")
	NewMenu(tr, mgr)

	require.Len(t, tr.items, 4)
	assert.True(t, tr.items[0].Disabled)
	assert.Nil(t, tr.items[2])
	assert.Equal(t, "Quit", tr.items[3].Title)
}
