package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/flow"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
	"github.com/atikulmunna/flowscope/internal/output"
	"github.com/atikulmunna/flowscope/internal/parser"
	"github.com/atikulmunna/flowscope/internal/store"
)

var (
	viewLast bool
	viewSave bool
)

var viewCmd = &cobra.Command{
	Use:   "view [file]",
	Short: "Group a Splunk JSON/NDJSON export into flows",
	Long: `Parse a Splunk export (a JSON object, a JSON array, or one JSON value per
line), normalize every entry, and print the entries grouped by flow ID.

Entries that fail to parse are reported on stderr; the rest are shown.

Examples:
  flowscope view export.json
  flowscope view export.ndjson --filter-type level --filter ERROR
  flowscope view export.json --save
  flowscope view --last --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().BoolVar(&viewLast, "last", false, "show the last saved document instead of reading a file")
	viewCmd.Flags().BoolVar(&viewSave, "save", false, "save the parsed document for later --last runs")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	if viewLast == (len(args) == 1) {
		return errors.New("give either a file or --last")
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	crit, order, err := criteria()
	if err != nil {
		return err
	}
	renderer, err := output.New(outputFmt, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	var entries []model.RawLogEntry
	if viewLast {
		var name string
		var ok bool
		name, entries, ok = st.LoadDocument()
		if !ok {
			return errors.New("no saved document")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "showing saved document %s\n", name)
	} else {
		entries, err = readDocument(cmd, args[0])
		if err != nil {
			return err
		}
		if viewSave {
			if err := st.SaveDocument(filepath.Base(args[0]), entries); err != nil {
				logger.Warn("saving document", zap.Error(err))
			}
		}
	}

	msgs := normalize.New(nil).Entries(entries)
	return renderer.RenderGroups(flow.Group(flow.Filter(msgs, crit), order))
}

// readDocument parses path. A partial parse is reported on stderr and is
// not an error.
func readDocument(cmd *cobra.Command, path string) ([]model.RawLogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	entries, err := parser.ParseDocument(string(raw))
	var partial *parser.PartialError
	switch {
	case errors.As(err, &partial):
		fmt.Fprintln(cmd.ErrOrStderr(), partial.Error())
	case err != nil:
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
