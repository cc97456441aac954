package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var routineID string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a workout from a routine",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		sess, err := d.client.StartSession(cmd.Context(), routineID)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		fmt.Printf("Started session %s\n", sess.ID)
		return nil
	},
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active workout",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.client.EndSession(cmd.Context()); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		fmt.Println("Session ended")
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show the active workout, or a past one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		defer d.Close()

		if len(args) == 1 {
			sess, err := d.guide.SessionDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderSession(cmd.OutOrStdout(), sess)
			return nil
		}
		if err := d.guide.Refresh(cmd.Context()); err != nil {
			return err
		}
		renderSnapshot(cmd.OutOrStdout(), d.guide.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, endCmd, showCmd)

	startCmd.Flags().StringVarP(&routineID, "routine", "r", "", "Routine ID")
	startCmd.MarkFlagRequired("routine")
}
