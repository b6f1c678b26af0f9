package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/prompt"
	"github.com/user/collector/internal/render"
	"github.com/user/collector/internal/templates"
)

func newTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage templates",
		Long: color.GreenString(`Manage templates.

Saving a template creates or extends its backing table. Columns are only
ever added; deleting a template drops its table.`),
	}

	cmd.AddCommand(newTemplateApplyCommand())
	cmd.AddCommand(newTemplateNewCommand())
	cmd.AddCommand(newTemplateListCommand())
	cmd.AddCommand(newTemplateShowCommand())
	cmd.AddCommand(newTemplateDeleteCommand())

	return cmd
}

func newTemplateApplyCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update a template from a YAML file",
		Long: color.GreenString(`Create or update a template from a YAML file.

A template with the same name is updated in place; otherwise a new one is created.

Examples:
  collector template apply -f daily.yaml`),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := templates.LoadFile(file)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if existing, err := a.templates.GetByName(cmd.Context(), t.Name); err == nil {
				t.ID = existing.ID
			}

			saved, err := a.templates.Save(cmd.Context(), t)
			if err != nil {
				return err
			}

			color.Green("Template #%d %s saved", saved.ID, saved.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Template YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTemplateNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a template with the interactive wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			srcs, err := a.sources.List(cmd.Context())
			if err != nil {
				return err
			}

			t, err := prompt.NewWizard(prompt.Terminal{}, srcs).BuildTemplate()
			if err != nil {
				return fmt.Errorf("wizard failed: %w", err)
			}

			saved, err := a.templates.Create(cmd.Context(), t)
			if err != nil {
				return err
			}

			color.Green("Template #%d %s created", saved.ID, saved.Name)
			return nil
		},
	}
}

func newTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.templates.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				color.Yellow("No templates defined")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, t := range list {
				mode := "standard"
				if _, ok := t.MonitorColumn(); ok {
					mode = "monitor"
				}
				lastRun := t.LastRunAt
				if lastRun == "" {
					lastRun = "never"
				}
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.Name,
					mode,
					strconv.Itoa(len(t.Columns)),
					t.UniqueKey,
					lastRun,
				})
			}

			fmt.Println(render.Table([]string{"id", "name", "mode", "columns", "unique key", "last run"}, rows))
			return nil
		},
	}
}

func newTemplateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID|NAME",
		Short: "Print a template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			t, err := a.lookupTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			data, err := templates.Marshal(t)
			if err != nil {
				return err
			}

			lastRun := t.LastRunAt
			if lastRun == "" {
				lastRun = "never"
			}
			fmt.Printf("# template #%d, last run: %s\n%s", t.ID, lastRun, data)
			return nil
		},
	}
}

func newTemplateDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a template and drop its table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			t, err := a.lookupTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := confirm(fmt.Sprintf("Delete template %s and drop its table with all rows", t.Name)); err != nil {
				return err
			}

			if err := a.templates.Delete(cmd.Context(), t.ID); err != nil {
				return err
			}

			color.Green("Template %s deleted", t.Name)
			return nil
		},
	}
}
