package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kjk/kvstore/config"
	"github.com/kjk/kvstore/kvstore"
	"github.com/kjk/kvstore/log"
	"github.com/kjk/kvstore/serializer"
)

var (
	flagConfig     string
	flagDir        string
	flagSerializer string
	flagKeyMap     bool
	flagVerbose    bool

	// set in PersistentPreRunE
	conf *config.Config
)

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:           "kvstore",
		Short:         "Inspect and modify a kvstore database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
	}
	pf := c.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", config.DefaultFileName, "path to the config file")
	pf.StringVarP(&flagDir, "dir", "d", "", "directory with store files")
	pf.StringVarP(&flagSerializer, "serializer", "s", "", "serializer e.g. json, toon, msgpack, json+zstd")
	pf.BoolVar(&flagKeyMap, "key-map", false, "keep identifier => slot map in memory")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	c.AddCommand(putCmd, getCmd, deleteCmd, keysCmd, statsCmd, slotsCmd)
	c.AddCommand(exportCmd, importCmd)
	c.AddCommand(backupCmd, restoreCmd, backupsCmd)
	return c
}

// Execute builds the command tree and executes commands
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		log.Logf("Error: %s\n", err)
	}
	return err
}

// loadConfig reads the config file and applies flags on top of it
func loadConfig(cmd *cobra.Command) error {
	mustExist := cmd.Flags().Changed("config")
	c, err := config.Load(flagConfig, mustExist)
	if err != nil {
		return err
	}
	// every command opens the store again
	if c.FreshStart {
		return errors.New("fresh_start can't be set in config file, use --fresh with put or import")
	}
	if c.Ephemeral {
		return errors.New("ephemeral store doesn't persist between commands")
	}
	if flagDir != "" {
		c.Directory = flagDir
	}
	if flagSerializer != "" {
		if _, err = serializer.ByName(flagSerializer); err != nil {
			return err
		}
		c.Serializer = flagSerializer
	}
	if cmd.Flags().Changed("key-map") {
		c.KeyMap = flagKeyMap
	}
	if flagVerbose {
		c.Verbose = true
	}
	log.Verbose = c.Verbose
	if c.LogDir != "" {
		log.Init(&log.Config{Dir: c.LogDir})
	}
	conf = c
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.DisableStacktrace = true
	return zc.Build()
}

// openStore opens the store described by conf. Caller must Close() it.
// With fresh the store files are truncated.
func openStore(fresh bool) (*kvstore.Store, error) {
	ser, err := serializer.ByName(conf.Serializer)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(conf.Verbose)
	if err != nil {
		return nil, err
	}
	s, err := kvstore.Open(&kvstore.Options{
		Dir:           conf.Directory,
		DataFileName:  conf.DataFileName,
		IndexFileName: conf.IndexFileName,
		FreshStart:    fresh,
		Serializer:    ser,
		Logger:        logger,
		KeyMap:        conf.KeyMap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store in '%s': %w", conf.Directory, err)
	}
	log.Verbosef("opened store '%s', serializer: %s, fresh: %v\n", s.DataFilePath(), ser.Name(), fresh)
	return s, nil
}

// withStore opens the store, calls fn and closes the store
func withStore(fn func(s *kvstore.Store) error) error {
	return withStoreFresh(false, fn)
}

func withStoreFresh(fresh bool, fn func(s *kvstore.Store) error) error {
	s, err := openStore(fresh)
	if err != nil {
		return err
	}
	err = fn(s)
	if errClose := s.Close(); err == nil {
		err = errClose
	}
	return err
}
