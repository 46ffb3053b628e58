package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readAll *bool

func init() {
	readAll = readCmd.Flags().Bool("all", false, "Mark every unread grade change and attendance event.")
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(unreadCmd)
}

var readCmd = &cobra.Command{
	Use:   "read [--all] [<id>...]",
	Short: "Marks grade changes and attendance events as read.",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := activeHandle(cmd.Context())
		if err != nil {
			return err
		}

		ids := args
		if *readAll {
			unread, err := handle.Unread()
			if err != nil {
				return err
			}
			for _, change := range unread {
				ids = append(ids, change.ID)
			}
			attendance, err := handle.Attendance()
			if err != nil {
				return err
			}
			for _, event := range attendance.Events {
				ids = append(ids, event.ID)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("nothing to mark, pass ids or --all")
		}

		marked, err := handle.MarkRead(cmd.Context(), ids...)
		if err != nil {
			return err
		}
		fmt.Printf("marked %d as read\n", marked)
		return nil
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Prints the stored grade changes that were not marked as read.",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := activeHandle(cmd.Context())
		if err != nil {
			return err
		}
		unread, err := handle.Unread()
		if err != nil {
			return err
		}
		grades, err := handle.GradesYear()
		if err != nil {
			return err
		}
		if len(unread) == 0 {
			fmt.Println("nothing unread")
			return nil
		}
		printChanges(grades, unread)
		return nil
	},
}
