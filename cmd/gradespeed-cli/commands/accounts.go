package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	accountsCmd.AddCommand(removeAccountCmd)
	accountsCmd.AddCommand(useStudentCmd)
	rootCmd.AddCommand(accountsCmd)
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Lists stored accounts and their students.",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, found, err := app.service.ActiveIdentity(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"", "Account", "District", "Username", "Student", "Name", "School"})
		for _, account := range app.service.Accounts() {
			for _, student := range account.Students {
				marker := ""
				if found && active.StudentID() == student.ID {
					marker = "*"
				}
				t.AppendRow(table.Row{
					marker,
					account.ID,
					account.Credentials.District,
					account.Credentials.Username,
					student.ID,
					displayName(student),
					student.School,
				})
			}
		}
		t.Render()
		return nil
	},
}

var removeAccountCmd = &cobra.Command{
	Use:   "remove <account id>",
	Short: "Forgets an account and everything stored about its students.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.service.RemoveAccount(cmd.Context(), args[0])
	},
}

var useStudentCmd = &cobra.Command{
	Use:   "use <account id> <student id>",
	Short: "Makes a stored student the active one.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := app.service.SetActiveIdentity(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		student, err := handle.Student()
		if err != nil {
			return err
		}
		fmt.Printf("switched to %s\n", displayName(student))
		return nil
	},
}
