package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"charm.land/bubbles/v2/key"
)

// KeyConfig holds user overrides for board bindings. Blank fields keep defaults.
type KeyConfig struct {
	MoveTaskLeft  string
	MoveTaskRight string
	Refresh       string
	TaskInfo      string
	CopyID        string
}

// keyMap represents key map data used by this package.
type keyMap struct {
	quit          key.Binding
	reload        key.Binding
	toggleHelp    key.Binding
	moveLeft      key.Binding
	moveRight     key.Binding
	moveUp        key.Binding
	moveDown      key.Binding
	taskInfo      key.Binding
	moveTaskLeft  key.Binding
	moveTaskRight key.Binding
	copyID        key.Binding
	cancel        key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		toggleHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		moveRight:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		moveUp:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "card up")),
		moveDown:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "card down")),
		taskInfo:      key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "task info")),
		moveTaskLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move card left")),
		moveTaskRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move card right")),
		copyID:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy task id")),
		cancel:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel drag / close")),
	}
}

// applyConfig applies configured overrides.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.moveTaskLeft, cfg.MoveTaskLeft, "[", "move card left")
	configureBinding(&k.moveTaskRight, cfg.MoveTaskRight, "]", "move card right")
	configureBinding(&k.reload, cfg.Refresh, "r", "refresh")
	configureBinding(&k.copyID, cfg.CopyID, "y", "copy task id")
	if strings.TrimSpace(cfg.TaskInfo) != "" {
		configureBinding(&k.taskInfo, cfg.TaskInfo, "i", "task info")
	}
}

// configureBinding replaces a binding's keys and help from one raw override.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	keys, help := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(help, desc)
}

// parseBindingKeys turns one configured key into matcher keys and help text.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if strings.EqualFold(raw, "space") || raw == " " {
		return []string{" ", "space"}, "space"
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if unicode.IsUpper(r) {
			return []string{raw, "shift+" + strings.ToLower(raw)}, raw
		}
		return []string{raw}, raw
	}
	return []string{strings.ToLower(raw)}, raw
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.moveTaskLeft, k.moveTaskRight, k.taskInfo, k.copyID, k.reload, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.moveTaskLeft, k.moveTaskRight, k.cancel},
		{k.taskInfo, k.copyID, k.reload, k.toggleHelp, k.quit},
	}
}
