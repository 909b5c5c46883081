// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // hints, footers

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	BorderFocusColor   = lipgloss.AdaptiveColor{Light: "#3498DB", Dark: "#54A0FF"}

	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	// Pet
	PetColor    = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	BubbleColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}

	// Toasts
	ToastBorderSuccessColor = StatusSuccessColor
	ToastBorderErrorColor   = StatusErrorColor
	ToastBorderInfoColor    = BorderFocusColor
	ToastBorderWarnColor    = StatusWarningColor

	// Log levels
	LogDebugColor = TextMutedColor
	LogInfoColor  = TextPrimaryColor
	LogWarnColor  = StatusWarningColor
	LogErrorColor = StatusErrorColor

	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(BorderFocusColor)

	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor)

	FocusedPaneStyle = PaneStyle.BorderForeground(BorderFocusColor)

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)
	MutedStyle = lipgloss.NewStyle().Foreground(TextMutedColor)
	PetStyle   = lipgloss.NewStyle().Bold(true).Foreground(PetColor)
	NameStyle  = lipgloss.NewStyle().Italic(true).Foreground(TextSecondaryColor)

	BubbleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BubbleColor).
			Padding(0, 1)
)
