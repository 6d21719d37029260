package main

import (
	"cmp"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/tagger/pkg/client"
)

const (
	envAPIURL     = "TAGGER_API_URL"
	defaultAPIURL = "http://localhost:8080/api"
)

type options struct {
	url      string
	json     bool
	interval time.Duration
}

func (o *options) client() *client.Client {
	return client.New(o.url)
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "tagger",
		Short:         "Submit images for AI tagging and review the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", cmp.Or(os.Getenv(envAPIURL), defaultAPIURL), "API base URL")
	flags.BoolVar(&opts.json, "json", false, "Write JSON lines even on a terminal")
	flags.DurationVar(&opts.interval, "interval", 3*time.Second, "Status polling interval")

	root.AddCommand(
		newUploadCommand(opts),
		newStatusCommand(opts),
		newApproveCommand(opts),
		newWatchCommand(opts),
	)
	return root
}
