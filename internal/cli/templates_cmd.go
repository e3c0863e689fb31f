package cli

import (
	"github.com/spf13/cobra"

	"github.com/issueforge/issueforge/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage prompt templates",
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the built-in prompt templates to ~/.issueforge/templates",
	Long: `Install writes the built-in planner, coder, reviewer, and PR body
templates to ~/.issueforge/templates so they can be customized.
Existing files are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prompt.InstallBuiltinTemplates(); err != nil {
			return err
		}
		cmd.Println("Templates installed.")
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesInstallCmd)
}
