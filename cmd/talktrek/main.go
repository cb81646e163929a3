// Package main provides the TalkTrek CLI.
//
// Usage:
//
//	talktrek [flags] <command> [args]
//
// Commands:
//
//	missions  - Browse the practice mission catalog
//	languages - List supported learning languages
//	modes     - List learning modes
//	talk      - Start an interactive voice practice session
//	serve     - Run the practice backend server
//	config    - Manage CLI configuration
//
// Configuration:
//
//	The CLI stores configuration in ~/.talktrek/config.yaml
//	Use 'talktrek config' commands to manage it.
package main

import (
	"fmt"
	"os"

	"github.com/talktrek/talktrek/cmd/talktrek/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
