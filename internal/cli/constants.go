package cli

// Default values for CLI flags and formatted output.
const (
	// MaxDescriptionLength is the maximum length of a mod description to display.
	MaxDescriptionLength = 50
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
)
