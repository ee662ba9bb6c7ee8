// Package config reads kvstore.yml used by the command line tool
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/kjk/kvstore/backup"
	"github.com/kjk/kvstore/serializer"
	"github.com/kjk/kvstore/u"
)

const DefaultFileName = "kvstore.yml"

type Config struct {
	// directory with store files
	Directory     string
	DataFileName  string
	IndexFileName string
	FreshStart    bool
	Ephemeral     bool
	// serializer name as accepted by serializer.ByName()
	Serializer string
	KeyMap     bool

	// directory for daily log files, no file logging if empty
	LogDir  string
	Verbose bool

	// nil if there's no backup section
	Backup *backup.Config
}

// Default returns configuration used when there's no config file
func Default() *Config {
	return &Config{
		Directory:  ".",
		Serializer: serializer.Default.Name(),
	}
}

// Parse parses YAML config
func (c *Config) Parse(data []byte) error {
	var aux struct {
		Directory     string `yaml:"directory"`
		DataFileName  string `yaml:"data_file"`
		IndexFileName string `yaml:"index_file"`
		FreshStart    bool   `yaml:"fresh_start"`
		Ephemeral     bool   `yaml:"ephemeral"`
		Serializer    string `yaml:"serializer"`
		KeyMap        bool   `yaml:"key_map"`
		LogDir        string `yaml:"log_dir"`
		Verbose       bool   `yaml:"verbose"`
		Backup        *struct {
			Access   string `yaml:"access"`
			Secret   string `yaml:"secret"`
			Bucket   string `yaml:"bucket"`
			Endpoint string `yaml:"endpoint"`
			Region   string `yaml:"region"`
			Prefix   string `yaml:"prefix"`
			Insecure bool   `yaml:"insecure"`
		} `yaml:"backup"`
	}
	if err := yaml.UnmarshalStrict(data, &aux); err != nil {
		return err
	}

	if aux.Ephemeral && aux.Directory != "" {
		return errors.New("config: directory and ephemeral are mutually exclusive")
	}
	if aux.Serializer != "" {
		if _, err := serializer.ByName(aux.Serializer); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		c.Serializer = aux.Serializer
	}
	if aux.Directory != "" {
		c.Directory = u.ExpandTildeInPath(aux.Directory)
	}
	c.DataFileName = aux.DataFileName
	c.IndexFileName = aux.IndexFileName
	c.FreshStart = aux.FreshStart
	c.Ephemeral = aux.Ephemeral
	c.KeyMap = aux.KeyMap
	c.LogDir = u.ExpandTildeInPath(aux.LogDir)
	c.Verbose = aux.Verbose

	if b := aux.Backup; b != nil {
		c.Backup = &backup.Config{
			Access:   b.Access,
			Secret:   b.Secret,
			Bucket:   b.Bucket,
			Endpoint: b.Endpoint,
			Region:   b.Region,
			Prefix:   b.Prefix,
			Insecure: b.Insecure,
		}
		// secrets are often kept out of config files
		if c.Backup.Access == "" {
			c.Backup.Access = os.Getenv("KVSTORE_BACKUP_ACCESS")
		}
		if c.Backup.Secret == "" {
			c.Backup.Secret = os.Getenv("KVSTORE_BACKUP_SECRET")
		}
		if err := c.Backup.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Load reads config from path. A missing file is not an error if
// mustExist is false, defaults are returned.
func Load(path string, mustExist bool) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return c, nil
		}
		return nil, err
	}
	if err = c.Parse(data); err != nil {
		return nil, fmt.Errorf("config: failed to parse '%s': %w", path, err)
	}
	return c, nil
}
