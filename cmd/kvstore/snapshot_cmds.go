package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/log"
	"github.com/kjk/kvstore/snapshot"
	"github.com/kjk/kvstore/u"
)

var flagImportFresh bool

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export all values to a snapshot file",
	Long: `Export all values to a snapshot file.

Snapshot is compressed if path ends with .gz, .zstd, .zst or .br.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return withStore(func(s *kvstore.Store) error {
			timeStart := time.Now()
			info, err := snapshot.Export(s, path)
			if err != nil {
				return err
			}
			dur := time.Since(timeStart)
			log.Logf("exported %d values to '%s' (%s) in %s\n", info.Entries, path, u.FormatSize(u.FileSize(path)), dur)
			log.EventWithDuration("export", dur, "path", path, "entries", info.Entries)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import values from a snapshot file",
	Long: `Import values from a snapshot file.

With --fresh existing values are removed first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return withStoreFresh(flagImportFresh, func(s *kvstore.Store) error {
			timeStart := time.Now()
			info, err := snapshot.Import(s, path)
			if err != nil {
				return err
			}
			dur := time.Since(timeStart)
			log.Logf("imported %d values from '%s', created %s, in %s\n", info.Entries, path, info.Created.Format(time.RFC3339), dur)
			log.EventWithDuration("import", dur, "path", path, "entries", info.Entries)
			return nil
		})
	},
}

func init() {
	importCmd.Flags().BoolVar(&flagImportFresh, "fresh", false, "remove all values before importing")
}
