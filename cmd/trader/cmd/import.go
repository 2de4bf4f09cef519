package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/unzip"

	"github.com/kbd172102/trading-dashboard/journal"
	"github.com/kbd172102/trading-dashboard/market"
)

var importCmd = &cobra.Command{
	Use:   "import [archive-or-csv...]",
	Short: "Import historical bars into the journal",
	Long: `Import loads historical bar files into the SQLite journal so the live
engine can warm its indicators from them on start.

Accepts bar CSVs (optionally .xz compressed) and .zip archives of
CSVs. Rows that fail to parse are skipped and counted.

Example:
  trader import --db trader.sqlite data/silverm_2025.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var (
	importDBPath string
	importToken  string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importDBPath, "db", "trader.sqlite", "SQLite journal DB path")
	importCmd.Flags().StringVar(&importToken, "token", "", "instrument token to file bars under (default: strategy instrument)")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token := importToken
	if token == "" {
		token = cfg.Strategy.Instrument
	}

	jour, err := journal.NewSQLite(importDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jour.Close()

	var files []string
	for _, arg := range args {
		if strings.HasSuffix(arg, ".zip") {
			extracted, err := extractArchive(arg)
			if err != nil {
				return err
			}
			files = append(files, extracted...)
			continue
		}
		files = append(files, arg)
	}

	var total, dropped int
	for _, path := range files {
		bars, bad, err := market.LoadBarsFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		for _, b := range bars {
			if err := jour.RecordBar(token, b); err != nil {
				return fmt.Errorf("persist bar %s: %w", b.Start, err)
			}
		}
		total += len(bars)
		dropped += bad
		fmt.Printf("%s: %d bars (%d rows skipped)\n", path, len(bars), bad)
	}

	fmt.Printf("\nImported %d bars for %s into %s (%d rows skipped)\n", total, token, importDBPath, dropped)
	return nil
}

// extractArchive unpacks a zip of CSVs into a temp dir and returns the
// CSV paths found inside.
func extractArchive(path string) ([]string, error) {
	dir, err := os.MkdirTemp("", "trader-import-*")
	if err != nil {
		return nil, err
	}
	if err := unzip.Extract(path, dir); err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	var out []string
	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(p, ".csv") || strings.HasSuffix(p, ".csv.xz") {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", path)
	}
	return out, nil
}
