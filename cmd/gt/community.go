package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/growing-together/internal/model"
)

// idCommand builds a subcommand that acts on one record id.
func idCommand(opts *rootOptions, use, short string, fn func(ctx context.Context, a *app, id string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			out, err := fn(ctx, a, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
}

func newPostCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "post", Short: "Community feed"}
	cmd.AddCommand(idCommand(opts, "pin", "Pin or unpin a post", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.TogglePin(ctx, id)
	}))
	return cmd
}

func newTaskCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Garden tasks"}
	cmd.AddCommand(idCommand(opts, "claim", "Take an available task", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.ClaimTask(ctx, id)
	}))

	var proof []string
	complete := idCommand(opts, "complete", "Mark a task done", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.CompleteTask(ctx, id, proof)
	})
	complete.Flags().StringArrayVar(&proof, "proof", nil, "proof photo URL (repeatable)")
	cmd.AddCommand(complete)
	return cmd
}

func newEventCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Events and RSVPs"}
	cmd.AddCommand(idCommand(opts, "cancel", "Cancel an event", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.CancelEvent(ctx, id)
	}))
	cmd.AddCommand(idCommand(opts, "attendees", "List members going to an event", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.Attendees(ctx, id)
	}))

	var (
		status   string
		bringing []string
		notes    string
	)
	rsvp := &cobra.Command{
		Use:   "rsvp <event-id>",
		Short: "Answer an event invitation",
		Args:  cobra.ExactArgs(1),
	}
	rsvp.RunE = withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var n *string
		if cmd.Flags().Changed("notes") {
			n = &notes
		}
		out, err := a.svc.RSVP(ctx, id, status, bringing, n)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
	rsvp.Flags().StringVar(&status, "status", model.RSVPGoing, "going|maybe|not_going")
	rsvp.Flags().StringArrayVar(&bringing, "bring", nil, "item you will bring (repeatable)")
	rsvp.Flags().StringVar(&notes, "notes", "", "note for the organisers")
	cmd.AddCommand(rsvp)
	return cmd
}

func newJoinCodeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "joincode", Short: "Invitation codes"}

	var (
		role    string
		maxUses int64
		ttl     time.Duration
	)
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Create a new join code",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			out, err := a.svc.GenerateJoinCode(ctx, role, maxUses, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	gen.Flags().StringVar(&role, "role", model.RoleMember, "role granted: admin|member|guest")
	gen.Flags().Int64Var(&maxUses, "max-uses", 0, "maximum redemptions (0 = unlimited)")
	gen.Flags().DurationVar(&ttl, "ttl", 0, "validity period (0 = no expiry)")
	cmd.AddCommand(gen)

	cmd.AddCommand(idCommand(opts, "toggle", "Enable or disable a join code", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.ToggleJoinCode(ctx, id)
	}))
	redeem := idCommand(opts, "redeem", "Use a join code", func(ctx context.Context, a *app, code string) (any, error) {
		return a.svc.RedeemJoinCode(ctx, code)
	})
	redeem.Use = "redeem <code>"
	cmd.AddCommand(redeem)
	return cmd
}

func newMemberCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Membership administration"}
	cmd.AddCommand(idCommand(opts, "approve", "Approve a registered member", func(ctx context.Context, a *app, s string) (any, error) {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		return a.svc.ApproveMember(ctx, id)
	}))
	cmd.AddCommand(&cobra.Command{
		Use:   "role <id> <role>",
		Short: "Change a member's role",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := a.svc.SetMemberRole(ctx, id, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	})
	return cmd
}

func newAlbumCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "album", Short: "Photo albums"}
	var caption string
	add := &cobra.Command{
		Use:   "add-photo <album-id> <url>",
		Short: "Add a photo to an album",
		Args:  cobra.ExactArgs(2),
	}
	add.RunE = withApp(opts, func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var c *string
		if cmd.Flags().Changed("caption") {
			c = &caption
		}
		out, err := a.svc.AddPhotoToAlbum(ctx, id, args[1], c)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
	add.Flags().StringVar(&caption, "caption", "", "photo caption")
	cmd.AddCommand(add)
	return cmd
}
