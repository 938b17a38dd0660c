package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
	"github.com/and161185/growing-together/internal/service"
)

func newKindsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List entity kinds and their columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make(map[model.Kind][]string)
			for _, k := range model.Kinds() {
				spec := model.MustLookup(k)
				cols := make([]string, 0, len(spec.Columns))
				for _, c := range spec.Columns {
					s := c.Name + ":" + c.Type.String()
					if c.Nullable {
						s += "?"
					}
					cols = append(cols, s)
				}
				out[k] = append(cols, spec.JoinedNames()...)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var (
		where []string
		order string
		desc  bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List records of a kind",
		Long: `List records of a kind, from the backend when online and from the
local cache otherwise. Records with unsynced local changes are always
shown in their local version.

  gt list task --where status=available --order due_date --limit 20
  gt list event_rsvp --where event_id=<uuid> --where status=going`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			t, err := a.svc.Table(args[0])
			if err != nil {
				return err
			}
			conds, err := service.ParseConditions(t.Spec(), where)
			if err != nil {
				return err
			}
			f := model.Filter{Where: conds, Limit: limit}
			if order != "" {
				f.OrderBy = []model.Order{{Column: order, Desc: desc}}
			}
			rows, err := t.Read(ctx, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		}),
	}
	cmd.Flags().StringArrayVar(&where, "where", nil, "col=value equality condition (repeatable, value null matches missing)")
	cmd.Flags().StringVar(&order, "order", "", "order by column")
	cmd.Flags().BoolVar(&desc, "desc", false, "descending order")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 = all)")
	return cmd
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			t, err := a.svc.Table(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			row, err := t.Get(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), row)
		}),
	}
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "create <kind>",
		Short: "Create a record from a JSON object",
		Long: `Create a record from a JSON object given inline or read from a file
("-" reads stdin). The id is generated when absent; ownership columns
default to the acting member.

  gt create post --data '{"content":"Seed swap on Saturday"}'
  gt create event --file event.json`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			t, err := a.svc.Table(args[0])
			if err != nil {
				return err
			}
			raw := []byte(data)
			if file != "" {
				if raw, err = readAll(cmd.InOrStdin(), file); err != nil {
					return err
				}
			}
			if len(strings.TrimSpace(string(raw))) == 0 {
				return errors.New("create: --data or --file is required")
			}
			row, err := service.DecodeRow(t.Spec(), raw)
			if err != nil {
				return err
			}
			out, err := a.svc.CreateRow(ctx, args[0], row)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().StringVar(&data, "data", "", "record as a JSON object")
	cmd.Flags().StringVar(&file, "file", "", "read the JSON object from a file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	return cmd
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:   "update <kind> <id>",
		Short: "Change fields of a record",
		Long: `Change fields of a record. Lists are comma separated, null clears a
nullable field.

  gt update task <id> --set priority=high --set due_date=2026-06-01T00:00:00Z`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			if len(set) == 0 {
				return fmt.Errorf("%w: nothing to update, use --set col=value", errs.ErrInvalid)
			}
			t, err := a.svc.Table(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			patch, err := service.ParseAssignments(t.Spec(), set)
			if err != nil {
				return err
			}
			out, err := a.svc.UpdateRow(ctx, args[0], id, patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "col=value assignment (repeatable)")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			t, err := a.svc.Table(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			if err := t.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", t.Spec().Kind, id)
			return nil
		}),
	}
}
