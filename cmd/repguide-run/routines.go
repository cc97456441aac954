package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var routinesCmd = &cobra.Command{
	Use:   "routines",
	Short: "List routine templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		routines, err := d.client.ListRoutines(cmd.Context())
		if err != nil {
			return fmt.Errorf("list routines: %w", err)
		}
		if len(routines) == 0 {
			fmt.Println("No routines. Seed some with repguide-import.")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		for _, r := range routines {
			fmt.Printf("%s  %s (%s, %d exercises)\n", green(r.ID), r.Name, r.Type, len(r.Exercises))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routinesCmd)
}
