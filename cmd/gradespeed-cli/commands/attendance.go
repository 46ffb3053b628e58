package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attendanceCmd)
}

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Fetches the attendance record of the active student.",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := activeHandle(cmd.Context())
		if err != nil {
			return err
		}
		events, err := handle.LoadAttendance(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"", "Date", "Period", "Reason", "ID"})
		for _, event := range events {
			unread := "*"
			if event.Read {
				unread = ""
			}
			t.AppendRow(table.Row{unread, event.Date.Format(time.DateOnly), event.Block, event.Explanation, event.ID})
		}
		t.Render()
		return nil
	},
}
