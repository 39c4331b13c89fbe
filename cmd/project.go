package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/signalworks/visibility-cli/internal/model"
)

var (
	projectName      string
	projectBrand     string
	projectProviders []string
	promptProjectID  string
	promptText       string
	compProjectID    string
	compName         string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage tracked projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if projectName == "" || projectBrand == "" {
			return eris.New("--name and --brand are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		p := &model.Project{
			ID:        uuid.New().String(),
			Name:      projectName,
			BrandName: projectBrand,
			Providers: projectProviders,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateProject(ctx, p); err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		projects, err := st.ListProjects(ctx, false)
		if err != nil {
			return err
		}
		for _, p := range projects {
			active := "inactive"
			if p.Active {
				active = "active"
			}
			fmt.Printf("%s  %-24s  brand=%s  %s\n", p.ID, p.Name, p.BrandName, active)
		}
		return nil
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage tracked prompts",
}

var promptAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tracked prompt to a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if promptProjectID == "" || promptText == "" {
			return eris.New("--project and --text are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if _, err := st.GetProject(ctx, promptProjectID); err != nil {
			return eris.Wrap(err, "look up project")
		}

		p := &model.Prompt{
			ID:        uuid.New().String(),
			ProjectID: promptProjectID,
			Text:      promptText,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreatePrompt(ctx, p); err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	},
}

var competitorCmd = &cobra.Command{
	Use:   "competitor",
	Short: "Manage tracked competitors",
}

var competitorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a competitor to a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if compProjectID == "" || compName == "" {
			return eris.New("--project and --name are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if _, err := st.GetProject(ctx, compProjectID); err != nil {
			return eris.Wrap(err, "look up project")
		}

		c := &model.Competitor{
			ID:        uuid.New().String(),
			ProjectID: compProjectID,
			Name:      compName,
			Active:    true,
		}
		if err := st.CreateCompetitor(ctx, c); err != nil {
			return err
		}
		fmt.Println(c.ID)
		return nil
	},
}

func init() {
	projectAddCmd.Flags().StringVar(&projectName, "name", "", "project name")
	projectAddCmd.Flags().StringVar(&projectBrand, "brand", "", "tracked brand name")
	projectAddCmd.Flags().StringSliceVar(&projectProviders, "providers", nil, "providers to use (default all configured)")
	projectCmd.AddCommand(projectAddCmd, projectListCmd)

	promptAddCmd.Flags().StringVar(&promptProjectID, "project", "", "project id")
	promptAddCmd.Flags().StringVar(&promptText, "text", "", "prompt text")
	promptCmd.AddCommand(promptAddCmd)

	competitorAddCmd.Flags().StringVar(&compProjectID, "project", "", "project id")
	competitorAddCmd.Flags().StringVar(&compName, "name", "", "competitor name")
	competitorCmd.AddCommand(competitorAddCmd)

	rootCmd.AddCommand(projectCmd, promptCmd, competitorCmd)
}
