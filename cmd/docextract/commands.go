package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docextract/internal/doctree"
	"github.com/dgallion1/docextract/internal/parser"
	"github.com/dgallion1/docextract/internal/section"
)

func textCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text <file>",
		Short: "Print the full text, one line per page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.extract(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.FullText)
			return err
		},
	}
}

func outlineCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "outline <file>",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.extract(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res.Outline)
			}
			renderOutline(cmd.OutOrStdout(), doctree.BuildTree(res.Name, res.Outline), res.PageCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the flat outline as JSON")
	return cmd
}

func sectionCmd(opts *globalOptions) *cobra.Command {
	var start, end, entry int
	cmd := &cobra.Command{
		Use:   "section <file>",
		Short: "Print the text of a page range or outline entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byEntry := cmd.Flags().Changed("entry")
			if !byEntry && (start == 0 || end == 0) {
				return errors.New("either --entry or both --start and --end are required")
			}
			res, err := opts.extract(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sec, err := pickSection(res, byEntry, entry, start, end)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sec.Text)
			return err
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "first page (1-based)")
	cmd.Flags().IntVar(&end, "end", 0, "last page (inclusive)")
	cmd.Flags().IntVar(&entry, "entry", 0, "outline entry index (0-based)")
	cmd.MarkFlagsMutuallyExclusive("entry", "start")
	cmd.MarkFlagsMutuallyExclusive("entry", "end")
	return cmd
}

func pickSection(res doctree.Result, byEntry bool, entry, start, end int) (doctree.Section, error) {
	if byEntry {
		ranges := section.Ranges(res.Outline, res.PageCount)
		if entry < 0 || entry >= len(ranges) {
			return doctree.Section{}, fmt.Errorf("entry %d out of range (outline has %d entries)", entry, len(ranges))
		}
		start, end = ranges[entry].StartPage, ranges[entry].EndPage
	}
	if start < 1 || end > res.PageCount || start > end {
		return doctree.Section{}, fmt.Errorf("invalid page range %d-%d (document has %d pages)", start, end, res.PageCount)
	}
	return section.Of(res, start, end), nil
}

func formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported document formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderFormats(cmd.OutOrStdout(), parser.Formats)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
