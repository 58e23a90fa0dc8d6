package commands

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewSearchCommand runs a single text search.
func NewSearchCommand(opts *Options) *cobra.Command {
	var (
		topN   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find products similar to a text query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if topN <= 0 {
				topN = a.cfg.Search.DefaultTopN
			}
			matches, err := a.search.SearchByText(a.Context(cmd.Context()), args[0], topN)
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), matches, asJSON)
		},
	}

	cmd.Flags().IntVarP(&topN, "top-n", "n", 0, "Number of results (default search.default_top_n)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

// NewSearchImageCommand runs a single image search.
func NewSearchImageCommand(opts *Options) *cobra.Command {
	var (
		topN        int
		contentType string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "search-image [file]",
		Short: "Find products similar to an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			if contentType == "" && len(data) > 0 {
				contentType = http.DetectContentType(data)
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if topN <= 0 {
				topN = a.cfg.Search.DefaultTopN
			}
			matches, err := a.search.SearchByImage(a.Context(cmd.Context()), data, contentType, topN)
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), matches, asJSON)
		},
	}

	cmd.Flags().IntVarP(&topN, "top-n", "n", 0, "Number of results (default search.default_top_n)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Image MIME type (sniffed when empty)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}
