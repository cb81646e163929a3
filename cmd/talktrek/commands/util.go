package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#56b6f2"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e5c07b"))
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printSuccess(format string, args ...any) {
	fmt.Println(titleStyle.Render("✓") + " " + fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Println(dimStyle.Render(fmt.Sprintf(format, args...)))
	}
}
