package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tagger/pkg/client"
	"github.com/JaimeStill/tagger/pkg/poller"
)

func newUploadCommand(opts *options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images and start their workflows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			out := newPrinter(cmd.OutOrStdout(), opts.json)

			var started []target
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				name := filepath.Base(path)
				result, err := c.Upload(cmd.Context(), name, f)
				f.Close()
				if err != nil {
					return fmt.Errorf("upload %s: %w", name, err)
				}

				snap := poller.Snapshot{FileName: name, InstanceID: result.ID}
				if result.Details != nil {
					snap.Status = string(result.Details.Status)
					snap.Stage = result.Details.Stage
				}
				out.snapshots(snap)
				started = append(started, target{id: result.ID, fileName: name})
			}

			if !watch {
				return nil
			}
			return watchTargets(cmd, opts, c, started)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until every upload finishes")
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>...",
		Short: "Show the workflow status of submissions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			out := newPrinter(cmd.OutOrStdout(), opts.json)

			snaps := make([]poller.Snapshot, 0, len(args))
			failed := 0
			for _, id := range args {
				snap, err := poller.Observe(cmd.Context(), c, id, "")
				if err != nil {
					return err
				}
				if snap.Status == poller.StatusError {
					failed++
				}
				snaps = append(snaps, snap)
			}
			out.snapshots(snaps...)

			if failed > 0 {
				return fmt.Errorf("%d of %d submissions failed", failed, len(args))
			}
			return nil
		},
	}
}

func newApproveCommand(opts *options) *cobra.Command {
	var (
		stage string
		deny  bool
	)

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve or deny an AI stage for a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := opts.client().Approve(cmd.Context(), id, stage, !deny); err != nil {
				return err
			}
			verb := "approved"
			if deny {
				verb = "denied"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %s\n", verb, stage, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", client.StageTags, "Stage to decide: tags or alttext")
	cmd.Flags().BoolVar(&deny, "deny", false, "Deny instead of approve")
	return cmd
}

func newWatchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>...",
		Short: "Poll submissions until they finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := make([]target, len(args))
			for i, id := range args {
				targets[i] = target{id: id}
			}
			return watchTargets(cmd, opts, opts.client(), targets)
		},
	}
}

type target struct {
	id       string
	fileName string
}

func watchTargets(cmd *cobra.Command, opts *options, c *client.Client, targets []target) error {
	out := newPrinter(cmd.OutOrStdout(), opts.json)

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{}, len(targets))
		done    = make(chan struct{})
		failed  int
	)
	for _, t := range targets {
		pending[t.id] = struct{}{}
	}

	p := poller.New(c, func(s poller.Snapshot) {
		out.snapshots(s)
		if !s.Terminal() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if s.Status == poller.StatusError {
			failed++
		}
		delete(pending, s.InstanceID)
		if len(pending) == 0 {
			close(done)
		}
	}, poller.WithInterval(opts.interval))
	defer p.Close()

	for _, t := range targets {
		p.Start(t.id, t.fileName)
	}

	select {
	case <-done:
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(targets))
	}
	return nil
}
