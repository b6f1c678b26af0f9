package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/render"
)

func newSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage data sources",
		Long: color.GreenString(`Manage the endpoints that source and device monitor columns poll.

Deleting a source does not touch templates that reference it; their next run fails.`),
	}

	cmd.AddCommand(newSourceAddCommand())
	cmd.AddCommand(newSourceListCommand())
	cmd.AddCommand(newSourceUpdateCommand())
	cmd.AddCommand(newSourceDeleteCommand())

	return cmd
}

func newSourceAddCommand() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "add ENDPOINT",
		Short: "Register an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			src, err := a.sources.Add(cmd.Context(), args[0], label)
			if err != nil {
				return err
			}

			color.Green("Data source #%d added: %s", src.ID, src.Endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	return cmd
}

func newSourceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List data sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.sources.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				color.Yellow("No data sources registered")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.Label, s.Endpoint})
			}
			fmt.Println(render.Table([]string{"id", "label", "endpoint"}, rows))
			return nil
		},
	}
}

func newSourceUpdateCommand() *cobra.Command {
	var endpoint, label string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a source's endpoint or label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			current, err := a.sources.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("endpoint") {
				endpoint = current.Endpoint
			}
			if !cmd.Flags().Changed("label") {
				label = current.Label
			}

			src, err := a.sources.Update(cmd.Context(), id, endpoint, label)
			if err != nil {
				return err
			}

			color.Green("Data source #%d updated: %s", src.ID, src.Endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "New endpoint URL")
	cmd.Flags().StringVar(&label, "label", "", "New label")
	return cmd
}

func newSourceDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := confirm(fmt.Sprintf("Delete data source #%d? Templates using it will fail", id)); err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sources.Delete(cmd.Context(), id); err != nil {
				return err
			}

			color.Green("Data source #%d deleted", id)
			return nil
		},
	}
}
