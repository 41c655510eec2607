package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// TabStyle is an inactive panel tab.
var TabStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Padding(0, 1)

// ActiveTabStyle is the focused panel tab.
var ActiveTabStyle = TabStyle.
	Bold(true).
	Foreground(ColorBlue).
	Underline(true)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// ReadItemStyle dims items already read.
var ReadItemStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// PendingStyle marks items whose mutation awaits confirmation.
var PendingStyle = lipgloss.NewStyle().
	Foreground(ColorYellow).
	Italic(true)

// ErrorStyle is used for inline failure notices.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// PanelStyle frames overlays such as help and the command palette.
var PanelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBlue).
	Padding(1, 2)

// BadgeStyle renders unread counters.
var BadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorRed).
	Padding(0, 1)

// CategoryColor returns the color associated with an item category.
func CategoryColor(c model.Category) lipgloss.AdaptiveColor {
	switch c {
	case model.CategorySuccess:
		return ColorGreen
	case model.CategoryWarning:
		return ColorYellow
	case model.CategoryError:
		return ColorRed
	case model.CategoryAdmin:
		return ColorMagenta
	case model.CategorySelf:
		return ColorGreen
	case model.CategoryInfo, model.CategoryMember:
		return ColorBlue
	default:
		return ColorGray
	}
}

// CategoryStyle returns a color-coded label style for the given category.
func CategoryStyle(c model.Category) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CategoryColor(c))
}

// AlertStyle returns the one-line toast style for an alert of category c.
func AlertStyle(c model.Category) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(CategoryColor(c)).
		Foreground(CategoryColor(c))
}
