package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/render"
)

func newTableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect backing tables",
	}

	cmd.AddCommand(newTableListCommand())
	cmd.AddCommand(newTableShowCommand())
	cmd.AddCommand(newTableClearCommand())

	return cmd
}

func newTableListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			names, err := a.tables.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func newTableShowCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print the rows of a backing table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			data, err := a.tables.Read(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(data.Rows))
			for _, r := range data.Rows {
				cells := make([]string, len(r))
				for i, v := range r {
					if v == nil {
						cells[i] = "NULL"
						continue
					}
					cells[i] = fmt.Sprint(v)
				}
				rows = append(rows, cells)
			}

			fmt.Println(render.Table(data.Columns, rows))
			color.Cyan("%d rows", len(rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many rows (0 for all)")
	return cmd
}

func newTableClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear NAME",
		Short: "Delete every row of a backing table and reset its ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete every row of %s", args[0])); err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.tables.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			color.Green("Cleared %d rows from %s", n, args[0])
			return nil
		},
	}
}
