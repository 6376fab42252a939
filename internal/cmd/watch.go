package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atikulmunna/flowscope/internal/flow"
	"github.com/atikulmunna/flowscope/internal/model"
	"github.com/atikulmunna/flowscope/internal/normalize"
	"github.com/atikulmunna/flowscope/internal/output"
	"github.com/atikulmunna/flowscope/internal/parser"
	"github.com/atikulmunna/flowscope/internal/store"
	"github.com/atikulmunna/flowscope/internal/tailer"
	"github.com/atikulmunna/flowscope/internal/watcher"
)

var watchFromStart bool

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Watch NDJSON log files and print new messages as they arrive",
	Long: `Watch one or more NDJSON files (or glob patterns) and stream every new
entry to the terminal in real time. Entries may span several lines.
Read offsets are saved, so a restart continues where the last run stopped.

Examples:
  flowscope watch /var/log/app/events.ndjson
  flowscope watch "/var/log/**/*.ndjson" --filter-type level --filter ERROR
  flowscope watch export.ndjson --from-start --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchFromStart, "from-start", false, "read files without a saved offset from the beginning")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	crit, _, err := criteria()
	if err != nil {
		return err
	}
	renderer, err := output.New(outputFmt, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(args, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Fprintf(os.Stderr, "flowscope watching %d file(s):\n", len(w.Paths()))
	for _, p := range w.Paths() {
		fmt.Fprintf(os.Stderr, "   - %s\n", p)
	}
	fmt.Fprintln(os.Stderr)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	t := tailer.New(w, st, tailer.Options{FromStart: watchFromStart, ManualCommit: true, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { w.Start(gctx); return nil })
	g.Go(func() error { t.Start(gctx); return nil })

	p := newLinePipeline(normalize.New(nil), crit, st, logger)
	for line := range t.Lines() {
		for _, msg := range p.feed(line) {
			if err := renderer.RenderMessage(msg); err != nil {
				logger.Warn("render error", zap.Error(err))
			}
		}
	}

	// Unfinished entries are read again from their first line next time.
	for _, path := range p.pending() {
		logger.Info("entry incomplete at shutdown, resuming next run", zap.String("file", path))
	}
	if err := st.Save(); err != nil {
		logger.Warn("checkpoint save failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stderr, "\nflowscope shutting down")
	return g.Wait()
}

// linePipeline turns tailed lines into normalized, filtered messages. Each
// file gets its own scanner so interleaved writes do not mix entries.
// Read positions are committed only up to the first line of an entry that
// is still being assembled.
type linePipeline struct {
	normalizer *normalize.Normalizer
	criteria   flow.Criteria
	offsets    tailer.Offsets
	logger     *zap.Logger
	files      map[string]*fileState
	index      int
}

type fileState struct {
	scanner    *parser.Scanner
	lineNo     int
	entryStart int64 // offset of the first line of the pending entry
}

func newLinePipeline(n *normalize.Normalizer, c flow.Criteria, offsets tailer.Offsets, logger *zap.Logger) *linePipeline {
	return &linePipeline{
		normalizer: n,
		criteria:   c,
		offsets:    offsets,
		logger:     logger,
		files:      make(map[string]*fileState),
	}
}

func (p *linePipeline) feed(line model.RawLine) []model.ParsedMessage {
	fs, ok := p.files[line.Source]
	if !ok {
		fs = &fileState{scanner: parser.NewScanner()}
		p.files[line.Source] = fs
	}
	if !fs.scanner.Pending() {
		fs.entryStart = line.Start
	}
	fs.lineNo++
	entries, notes := fs.scanner.Feed(fs.lineNo, line.Text)
	p.report(line.Source, notes)

	if fs.scanner.Pending() {
		p.offsets.SetOffset(line.Source, fs.entryStart)
	} else {
		p.offsets.SetOffset(line.Source, line.End)
	}
	return p.normalize(entries)
}

// pending lists the files whose last entry is not complete yet.
func (p *linePipeline) pending() []string {
	var out []string
	for path, fs := range p.files {
		if fs.scanner.Pending() {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

func (p *linePipeline) report(path string, notes []string) {
	for _, n := range notes {
		p.logger.Warn("skipped entry", zap.String("file", path), zap.String("reason", n))
	}
}

func (p *linePipeline) normalize(entries []model.RawLogEntry) []model.ParsedMessage {
	var out []model.ParsedMessage
	for _, e := range entries {
		msg, ok := p.normalizer.Entry(e, p.index)
		p.index++
		if !ok {
			continue
		}
		out = append(out, flow.Filter([]model.ParsedMessage{msg}, p.criteria)...)
	}
	return out
}
