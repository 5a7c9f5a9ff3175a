package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jonathan/applier/internal/dedup"
	"github.com/jonathan/applier/internal/ingestion"
	"github.com/jonathan/applier/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [feed.jsonl ...]",
	Short: "Ingest scraped job records from JSON Lines feeds",
	Long: `Read one or more JSON Lines scrape feeds (or stdin when no file or "-" is given),
validate every row and pass it through the deduplication gate.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// feedBatch is the decoded content of one or more feeds
type feedBatch struct {
	records []types.RawJobRecord
	invalid int
}

// readFeeds decodes every feed, reporting invalid rows to errOut
func readFeeds(reader *ingestion.FeedReader, paths []string, stdin io.Reader, errOut io.Writer) (feedBatch, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	var batch feedBatch
	for _, path := range paths {
		var rows []ingestion.FeedRecord
		var err error
		if path == "-" {
			rows, err = reader.Read(stdin)
		} else {
			rows, err = readFeedFile(reader, path)
		}
		if err != nil {
			return batch, err
		}
		for _, row := range rows {
			if row.Err != nil {
				batch.invalid++
				fmt.Fprintf(errOut, "%s:%d: %v\n", path, row.Line, row.Err)
				continue
			}
			batch.records = append(batch.records, row.Record)
		}
	}
	return batch, nil
}

func readFeedFile(reader *ingestion.FeedReader, path string) ([]ingestion.FeedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()
	return reader.Read(f)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	reader, err := ingestion.NewFeedReader()
	if err != nil {
		return err
	}
	batch, err := readFeeds(reader, args, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	database, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	gate := dedup.New(database, a.logger.Named("dedup"))
	results, err := gate.IngestBatch(cmd.Context(), batch.records)
	if err != nil {
		return err
	}

	counts := map[dedup.Outcome]int{dedup.OutcomeRejected: batch.invalid}
	for _, res := range results {
		counts[res.Outcome]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created: %d  updated: %d  duplicate: %d  rejected: %d\n",
		counts[dedup.OutcomeCreated], counts[dedup.OutcomeUpdated], counts[dedup.OutcomeDuplicate], counts[dedup.OutcomeRejected])
	a.logger.Debug("ingest finished", zap.Int("records", len(batch.records)+batch.invalid))
	return nil
}
