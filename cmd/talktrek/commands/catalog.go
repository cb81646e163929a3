package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/talktrek/talktrek/pkg/mission"
)

const catalogTimeout = 15 * time.Second

var missionsCmd = &cobra.Command{
	Use:   "missions [id]",
	Short: "Browse the practice mission catalog",
	Long: `List practice missions, or show one mission in detail.

Examples:
  talktrek missions
  talktrek missions cafe-order`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), catalogTimeout)
		defer cancel()

		client := newClient()
		if len(args) == 1 {
			m, err := client.MissionByID(ctx, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(m)
			}
			printMissionDetail(m)
			return nil
		}

		missions, err := client.Missions(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(missions)
		}
		fmt.Println(titleStyle.Render("Missions"))
		for _, m := range missions {
			fmt.Printf("  %s %s %s\n", m.Icon, m.Title,
				dimStyle.Render(fmt.Sprintf("(%s, ~%dmin)", m.Difficulty, m.EstimatedMinutes)))
			fmt.Printf("     %s\n", dimStyle.Render("id: "+m.ID))
		}
		return nil
	},
}

func printMissionDetail(m *mission.Mission) {
	fmt.Println(titleStyle.Render(m.Icon + " " + m.Title))
	fmt.Printf("  id:         %s\n", m.ID)
	fmt.Printf("  difficulty: %s\n", m.Difficulty)
	fmt.Printf("  duration:   ~%d minutes\n", m.EstimatedMinutes)
	if m.Persona != "" {
		fmt.Printf("  persona:    %s\n", m.Persona)
	}
	if m.Situation != "" {
		fmt.Printf("  situation:  %s\n", m.Situation)
	}
	if len(m.Objectives) > 0 {
		fmt.Println("  objectives:")
		for _, obj := range m.Objectives {
			fmt.Printf("    - %s\n", obj)
		}
	}
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported learning languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), catalogTimeout)
		defer cancel()

		languages, err := newClient().Languages(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(languages)
		}
		fmt.Println(titleStyle.Render("Languages"))
		for _, l := range languages {
			line := "  " + l.Name
			if l.Flag != "" {
				line = "  " + l.Flag + " " + l.Name
			}
			fmt.Println(line)
		}
		return nil
	},
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List learning modes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), catalogTimeout)
		defer cancel()

		modes, err := newClient().LearningModes(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(modes)
		}
		fmt.Println(titleStyle.Render("Learning modes"))
		for _, m := range modes {
			fmt.Printf("  %s %s\n", m.Name, dimStyle.Render("(id: "+m.ID+")"))
			if m.Description != "" {
				fmt.Printf("     %s\n", strings.TrimSpace(m.Description))
			}
		}
		return nil
	},
}
