// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID        int
	Title     string
	Tooltip   string
	Checkable bool
	Checked   bool
	Disabled  bool
	Callback  func()
	item      *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	title   string
	tooltip string
	items   []*MenuItem
	readyCh chan struct{}
	quitCh  chan struct{}
	onExit  func()
}

// New creates a new system tray
func New(title, tooltip string) *Tray {
	return &Tray{
		title:   title,
		tooltip: tooltip,
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	return t.add(&MenuItem{Title: title, Callback: callback})
}

// AddCheckbox adds a checkable menu item. The callback decides the new
// state; clicking does not toggle the mark by itself.
func (t *Tray) AddCheckbox(title, tooltip string, checked bool, callback func()) int {
	return t.add(&MenuItem{Title: title, Tooltip: tooltip, Checkable: true, Checked: checked, Callback: callback})
}

// AddLabel adds a disabled item used to display status text
func (t *Tray) AddLabel(title string) int {
	return t.add(&MenuItem{Title: title, Disabled: true})
}

func (t *Tray) add(mi *MenuItem) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	mi.ID = len(t.items)
	t.items = append(t.items, mi)
	return mi.ID
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

func (t *Tray) lookup(id int) *MenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id >= 0 && id < len(t.items) {
		return t.items[id]
	}
	return nil
}

// SetItemChecked sets the checked state of a menu item. Safe to call
// before the tray is running.
func (t *Tray) SetItemChecked(id int, checked bool) {
	mi := t.lookup(id)
	if mi == nil {
		return
	}
	t.mu.Lock()
	mi.Checked = checked
	item := mi.item
	t.mu.Unlock()
	if item == nil {
		return
	}
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// SetItemTitle changes the text of a menu item
func (t *Tray) SetItemTitle(id int, title string) {
	mi := t.lookup(id)
	if mi == nil {
		return
	}
	t.mu.Lock()
	mi.Title = title
	item := mi.item
	t.mu.Unlock()
	if item != nil {
		item.SetTitle(title)
	}
}

// Run starts the tray event loop (blocks). onExit runs after Stop.
func (t *Tray) Run(onExit func()) {
	t.onExit = onExit
	systray.Run(t.setupMenu, t.exit)
}

func (t *Tray) exit() {
	close(t.quitCh)
	if t.onExit != nil {
		t.onExit()
	}
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	systray.SetTitle(t.title)
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(getIcon())

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, menuItem := range t.items {
		if menuItem == nil {
			// Separator
			systray.AddSeparator()
			continue
		}

		var item *systray.MenuItem
		if menuItem.Checkable {
			item = systray.AddMenuItemCheckbox(menuItem.Title, menuItem.Tooltip, menuItem.Checked)
		} else {
			item = systray.AddMenuItem(menuItem.Title, menuItem.Tooltip)
		}
		if menuItem.Disabled {
			item.Disable()
		}
		menuItem.item = item

		// Handle clicks in goroutine
		if menuItem.Callback != nil {
			go func(item *systray.MenuItem, callback func()) {
				for {
					select {
					case <-item.ClickedCh:
						callback()
					case <-t.quitCh:
						return
					}
				}
			}(item, menuItem.Callback)
		}
	}
	close(t.readyCh)
}

// Ready is closed once the menu has been built
func (t *Tray) Ready() <-chan struct{} {
	return t.readyCh
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a placeholder icon (valid 16x16 ICO)
func getIcon() []byte {
	icon := make([]byte, 1118)
	// ICO Header
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// Icon Directory
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00, // 1024 pixels + 40 header + 32 mask
		0x16, 0x00, 0x00, 0x00, // Offset
	})
	// DIB Header
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00, // Size
		0x10, 0x00, 0x00, 0x00, // Width
		0x20, 0x00, 0x00, 0x00, // Height (16 * 2 for icon)
		0x01, 0x00, // Planes
		0x20, 0x00, // BPP
		0x00, 0x00, 0x00, 0x00, // Compression
		0x00, 0x04, 0x00, 0x00, // Image Size
	})
	// Pixel rows stay transparent except a diagonal pen stroke
	for i := 0; i < 16; i++ {
		off := 62 + (i*16+i)*4
		copy(icon[off:off+4], []byte{0x30, 0x30, 0x30, 0xFF})
	}
	return icon
}
