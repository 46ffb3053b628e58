package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	passwordCmd.AddCommand(setPasswordCmd)
	passwordCmd.AddCommand(checkPasswordCmd)
	rootCmd.AddCommand(passwordCmd)
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manages the password that locks the stored grades.",
}

var setPasswordCmd = &cobra.Command{
	Use:   "set [<password>]",
	Short: "Sets the app password, leaving it out removes the lock.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) > 0 {
			password = args[0]
		}
		err := app.service.SetAppPassword(cmd.Context(), password)
		if err != nil {
			return err
		}
		if password == "" {
			fmt.Println("password lock removed")
		} else {
			fmt.Println("password lock set")
		}
		return nil
	},
}

var checkPasswordCmd = &cobra.Command{
	Use:   "check <password>",
	Short: "Checks a password against the app password.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := app.service.CheckAppPassword(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}
