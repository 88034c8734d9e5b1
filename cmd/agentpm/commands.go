package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"agentpm/internal/shared/model"
)

func startCmd() *cobra.Command {
	var kind, id string
	cmd := &cobra.Command{
		Use:   "start <request...>",
		Short: "Start a conversation and run the discovery phase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := a.orch.Start(ctx, id, strings.Join(args, " "), kind)
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.ConversationKindIdea), "conversation kind: idea, feature or tool")
	cmd.Flags().StringVar(&id, "id", "", "conversation id (generated when empty)")
	return cmd
}

func continueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "continue <conversation-id> <response...>",
		Short: "Answer the specialists and re-run the current phase",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := a.orch.Continue(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return printOutcome(out)
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <conversation-id>",
		Short: "Show the phase and counters of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				st, err := a.orch.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printStatus(st)
			})
		},
	}
}

func checkpointCmd() *cobra.Command {
	cp := &cobra.Command{Use: "checkpoint", Short: "Manage conversation checkpoints"}
	cp.AddCommand(&cobra.Command{
		Use:   "create <conversation-id>",
		Short: "Snapshot the conversation state now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				c, err := a.orch.CreateCheckpoint(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{"conversation_id": c.ConversationID, "timestamp": c.Timestamp})
				}
				fmt.Printf("checkpoint %d created for %s (phase %s)\n", c.Timestamp, c.ConversationID, c.State.Phase)
				return nil
			})
		},
	})
	cp.AddCommand(&cobra.Command{
		Use:   "list <conversation-id>",
		Short: "List checkpoint timestamps, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				list, err := a.orch.ListCheckpoints(ctx, args[0])
				if err != nil {
					return err
				}
				return printCheckpoints(list)
			})
		},
	})
	return cp
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <conversation-id> [timestamp]",
		Short: "Restore a conversation from a checkpoint (latest when no timestamp)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ts int64
			if len(args) == 2 {
				v, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid timestamp %q: %w", args[1], err)
				}
				ts = v
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				state, err := a.orch.Restore(ctx, args[0], ts)
				if err != nil {
					return err
				}
				st, err := a.orch.Status(ctx, state.ID)
				if err != nil {
					return err
				}
				return printStatus(st)
			})
		},
	}
}

func documentsCmd() *cobra.Command {
	var final bool
	var kind string
	cmd := &cobra.Command{
		Use:   "documents <conversation-id>",
		Short: "List persisted documents, or print one with --kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if kind != "" {
					doc, err := a.infra.Documents.GetDocument(ctx, args[0], model.DocumentKind(kind), final)
					if err != nil {
						return err
					}
					fmt.Println(doc.Content)
					return nil
				}
				docs, err := a.infra.Documents.ListDocuments(ctx, args[0], final)
				if err != nil {
					return err
				}
				return printDocuments(docs)
			})
		},
	}
	cmd.Flags().BoolVar(&final, "final", false, "final documents only")
	cmd.Flags().StringVar(&kind, "kind", "", "print the content of one document kind")
	return cmd
}

func refineCmd() *cobra.Command {
	var kind, level string
	cmd := &cobra.Command{
		Use:   "refine <file>",
		Short: "Run the quality refinement loop on a local document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			k := model.DocumentKind(kind)
			if !k.Valid() {
				return fmt.Errorf("unknown document kind %q", kind)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				out, err := a.refiner.RefineDocument(ctx, string(data), k, model.ParseQualityLevel(level))
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out)
				}
				fmt.Println(out.Content)
				fmt.Fprintf(os.Stderr, "\nscore %.1f after %d passes, %d improvements (approved: %t)\n",
					out.FinalScore, len(out.Passes), out.Iterations, out.Approved())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.DocumentPRD), "document kind")
	cmd.Flags().StringVar(&level, "level", string(model.QualityStandard), "quality level: draft, standard, premium or excellence")
	return cmd
}

func serveMetricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics and a health endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Metrics.Listen
				}
				return a.metrics.Serve(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to metrics.listen)")
	return cmd
}
