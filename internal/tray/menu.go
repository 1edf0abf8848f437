package tray

import (
	"fmt"
	"log"

	"pendrag/internal/config"
)

// Menu wires the daemon controls into a tray
type Menu struct {
	tray      *Tray
	configMgr *config.Manager
	threshold int
	smooth    int
}

// NewMenu builds the pendrag menu: a threshold label, the Smooth
// Transition toggle and Quit. The menu follows config changes made
// elsewhere (API, file reload).
func NewMenu(t *Tray, configMgr *config.Manager) *Menu {
	m := &Menu{tray: t, configMgr: configMgr}
	cfg := configMgr.Get()

	m.threshold = t.AddLabel(thresholdLabel(cfg))
	m.smooth = t.AddCheckbox("Smooth Transition",
		"Offset drags by the threshold so the cursor does not jump",
		cfg.Filter.SmoothTransition, func() {
			if _, err := m.ToggleSmooth(); err != nil {
				log.Printf("Tray: Failed to toggle smooth transition: %v", err)
			}
		})
	t.AddSeparator()
	t.AddMenuItem("Quit", t.Stop)

	configMgr.RegisterChangeCallback(m.refresh)
	return m
}

// ToggleSmooth flips the smooth transition setting and saves it. The
// service rebuilds its filters through the config change callback.
func (m *Menu) ToggleSmooth() (bool, error) {
	fc := m.configMgr.Get().Filter
	fc.SmoothTransition = !fc.SmoothTransition
	if err := m.configMgr.SetFilter(fc); err != nil {
		return false, err
	}
	log.Printf("Tray: Smooth transition set to %v", fc.SmoothTransition)
	return fc.SmoothTransition, m.configMgr.Save()
}

func (m *Menu) refresh() {
	cfg := m.configMgr.Get()
	m.tray.SetItemChecked(m.smooth, cfg.Filter.SmoothTransition)
	m.tray.SetItemTitle(m.threshold, thresholdLabel(cfg))
}

func thresholdLabel(cfg config.Config) string {
	return fmt.Sprintf("Drag threshold: %g px", cfg.Filter.Threshold)
}
