package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "docextract",
		Short:         "Extract text, outlines and sections from documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file")
	f.DurationVar(&opts.timeout, "timeout", 0, "extraction timeout (default from config, 30s)")
	f.Int64Var(&opts.maxBytes, "max-bytes", 0, "maximum document size in bytes (default from config, 50 MiB)")
	f.BoolVar(&opts.progress, "progress", false, "print progress to stderr")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		textCmd(opts),
		outlineCmd(opts),
		sectionCmd(opts),
		formatsCmd(),
	)
	return root
}
