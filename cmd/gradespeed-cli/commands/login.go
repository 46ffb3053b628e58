package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gradespeed-backend/internal/gradeservice"
	"gradespeed-backend/internal/model"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// choices whose name is less similar than this are not picked by name
const nameThreshold = 0.8

type loginParams struct {
	district    string
	username    string
	password    string
	studentID   string
	studentName string
}

func init() {
	loginCmd.Flags().String("district", "", "The district to log into, one of austin and roundrock.")
	loginCmd.Flags().StringP("username", "u", "", "The username of the parent account.")
	loginCmd.Flags().StringP("password", "p", "", "The password of the parent account.")
	loginCmd.Flags().String("student-id", "", "The student to pick when the account has several.")
	loginCmd.Flags().String("student-name", "", "Pick the student with the closest name when the account has several.")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [--district <id>] [-u <username>] [-p <password>] [--student-id <id> | --student-name <name>]",
	Short: "Logs into a district and makes the student the active one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := loginParams{
			district:  app.config.District,
			username:  app.config.Username,
			password:  app.config.Password,
			studentID: app.config.StudentID,
		}
		flags := cmd.Flags()
		for name, target := range map[string]*string{
			"district":     &params.district,
			"username":     &params.username,
			"password":     &params.password,
			"student-id":   &params.studentID,
			"student-name": &params.studentName,
		} {
			if flags.Changed(name) {
				value, err := flags.GetString(name)
				if err != nil {
					return err
				}
				*target = value
			}
		}
		if params.district == "" || params.username == "" {
			return fmt.Errorf("a district and username are required")
		}

		handle, err := login(cmd.Context(), params)
		if err != nil {
			return err
		}
		student, err := handle.Student()
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", displayName(student), student.ID)
		return nil
	},
}

func login(ctx context.Context, params loginParams) (*gradeservice.Handle, error) {
	attempt, err := app.service.AttemptLogin(ctx, params.district, params.username, params.password)
	if err != nil {
		return nil, err
	}
	if attempt.Handle != nil {
		return attempt.Handle, nil
	}

	studentID := params.studentID
	if studentID == "" && params.studentName != "" {
		choice, similarity, ok := closestChoice(attempt.Choices, params.studentName)
		if ok {
			slog.Debug("picked student by name", "name", choice.Name, "similarity", similarity)
			studentID = choice.StudentID
		}
	}
	if studentID == "" {
		printChoices(attempt.Choices)
		return nil, fmt.Errorf("the account has several students, pick one with --student-id")
	}
	return attempt.SelectStudent(ctx, studentID)
}

// closestChoice finds the choice whose name is most similar to name.
func closestChoice(choices []model.StudentChoice, name string) (model.StudentChoice, float64, bool) {
	var best model.StudentChoice
	bestSimilarity := 0.0
	for _, choice := range choices {
		similarity := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(choice.Name), false)
		if similarity > bestSimilarity {
			best = choice
			bestSimilarity = similarity
		}
	}
	return best, bestSimilarity, bestSimilarity >= nameThreshold
}

func printChoices(choices []model.StudentChoice) {
	t := newTable()
	t.AppendHeader(table.Row{"Student ID", "Name"})
	for _, choice := range choices {
		t.AppendRow(table.Row{choice.StudentID, choice.Name})
	}
	t.Render()
}

func displayName(student model.Student) string {
	if student.Name != "" {
		return student.Name
	}
	return "<unnamed student>"
}
