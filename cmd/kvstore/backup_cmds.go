package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjk/kvstore/backup"
	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/log"
	"github.com/kjk/kvstore/u"
)

func newBackupClient(ctx context.Context) (*backup.Client, error) {
	if conf.Backup == nil {
		return nil, errors.New("no backup section in config file")
	}
	if conf.Verbose {
		conf.Backup.RequestTrace = os.Stderr
	}
	return backup.New(ctx, conf.Backup)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload store files to the backup bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		client, err := newBackupClient(ctx)
		if err != nil {
			return err
		}
		return withStore(func(s *kvstore.Store) error {
			timeStart := time.Now()
			var m *backup.Manifest
			// files must not change while uploading
			err := s.WithFilesLocked(func(dataPath, indexPath string) error {
				var err error
				m, err = client.Upload(ctx, dataPath, indexPath)
				return err
			})
			if err != nil {
				return err
			}
			dur := time.Since(timeStart)
			log.Logf("created backup %s, data: %s, index: %s in %s\n", m.ID, u.FormatSize(m.DataSize), u.FormatSize(m.IndexSize), dur)
			log.EventWithDuration("backup", dur, "id", m.ID, "data_size", m.DataSize)
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Replace store files with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		ctx, cancel := signalContext(cmd)
		defer cancel()
		client, err := newBackupClient(ctx)
		if err != nil {
			return err
		}
		dataName := conf.DataFileName
		if dataName == "" {
			dataName = kvstore.DefaultDataFileName
		}
		indexName := conf.IndexFileName
		if indexName == "" {
			indexName = kvstore.DefaultIndexFileName
		}
		dataPath := filepath.Join(conf.Directory, dataName)
		indexPath := filepath.Join(conf.Directory, indexName)
		if u.PathExists(dataPath) {
			log.Verbosef("replacing '%s' (%s)\n", dataPath, u.FormatSize(u.FileSize(dataPath)))
		}
		m, err := client.Download(ctx, id, dataPath, indexPath)
		if err != nil {
			return fmt.Errorf("restore of '%s' failed: %w", id, err)
		}
		log.Logf("restored backup %s created %s into '%s'\n", m.ID, m.Created.Format(time.RFC3339), conf.Directory)
		log.Event("restore", "id", m.ID)
		return nil
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()
		client, err := newBackupClient(ctx)
		if err != nil {
			return err
		}
		ids, err := client.List(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			m, err := client.ReadManifest(ctx, id)
			if log.IfErrf(err) {
				continue
			}
			fmt.Printf("%s  data: %s  index: %s\n", id, u.FormatSize(m.DataSize), u.FormatSize(m.IndexSize))
		}
		return nil
	},
}
