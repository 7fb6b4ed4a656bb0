// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/casc/lib/assetcache"
	"github.com/bureau-foundation/casc/lib/config"
	"github.com/bureau-foundation/casc/lib/listfile"
	"github.com/bureau-foundation/casc/lib/logging"
	"github.com/bureau-foundation/casc/lib/rootmanifest"
	"github.com/bureau-foundation/casc/lib/storage"
	"github.com/bureau-foundation/casc/lib/tactkey"
)

// session holds the flags shared by every command that reads an
// installation. Flags override the config file, which overrides the
// defaults.
//
// Usage pattern:
//
//	var session session
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet {
//	        flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
//	        session.addFlags(flagSet)
//	        return flagSet
//	    },
//	    Run: func(ctx context.Context, args []string) error {
//	        store, err := session.open(ctx)
//	        ...
//	    },
//	}
type session struct {
	configPath string
	root       string
	product    string
	locale     string
	listfile   string
	keyFiles   []string
	noCDN      bool
	strictKeys bool
	seedKeys   bool
	logLevel   string
}

func (s *session) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.configPath, "config", "", "config file (default: $"+config.EnvConfig+", then builtin defaults)")
	flagSet.StringVar(&s.root, "root", "", "installation directory (overrides storage.root)")
	flagSet.StringVar(&s.product, "product", "", "product row of .build.info (overrides storage.product)")
	flagSet.StringVar(&s.locale, "locale", "", "root manifest locale, e.g. enUS (overrides storage.locale)")
	flagSet.StringVar(&s.listfile, "listfile", "", "id;name listing for name lookups (overrides storage.listfile)")
	flagSet.StringSliceVar(&s.keyFiles, "keys", nil, "additional key files")
	flagSet.BoolVar(&s.noCDN, "no-cdn", false, "read local archives only")
	flagSet.BoolVar(&s.strictKeys, "strict-keys", false, "fail on chunks whose key is unknown instead of zero-filling them")
	flagSet.BoolVar(&s.seedKeys, "seed-keys", true, "add keys resolved from the in-data key tables")
	flagSet.StringVar(&s.logLevel, "log-level", "", "debug, info, warn, or error (overrides log.level)")
}

// config loads the configuration and applies the flag overrides.
func (s *session) config() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case s.configPath != "":
		cfg, err = config.LoadFile(s.configPath)
	case os.Getenv(config.EnvConfig) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if s.root != "" {
		cfg.Storage.Root = s.root
	}
	if s.product != "" {
		cfg.Storage.Product = s.product
	}
	if s.locale != "" {
		cfg.Storage.Locale = s.locale
	}
	if s.listfile != "" {
		cfg.Storage.Listfile = s.listfile
	}
	cfg.Keys.Files = append(cfg.Keys.Files, s.keyFiles...)
	if s.noCDN {
		cfg.CDN.Enabled = false
	}
	if s.strictKeys {
		cfg.Keys.Strict = true
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logger builds the process logger from cfg.
func (s *session) logger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

// keys creates the key service and loads the configured key files.
// Unreadable files are logged; the builtin keys are always present.
func (s *session) keys(cfg *config.Config, logger *slog.Logger) *tactkey.Service {
	service := tactkey.New(tactkey.Options{
		Files:     cfg.Keys.Files,
		RemoteURL: cfg.KeysURL(),
		CacheDir:  cfg.Keys.CacheDir,
		Logger:    logger,
	})
	for _, path := range cfg.Keys.Files {
		added, err := service.LoadFile(path)
		if err != nil {
			logger.Warn("loading key file failed", "path", path, "error", err)
			continue
		}
		logger.Debug("loaded key file", "path", path, "added", added)
	}
	return service
}

// open builds every dependency of the storage layer from configuration
// and opens the installation.
func (s *session) open(ctx context.Context) (*storage.Storage, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	logger, err := s.logger(cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	locale, err := rootmanifest.ParseLocale(cfg.Storage.Locale)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.CDNTimeout()
	if err != nil {
		return nil, err
	}

	options := storage.Options{
		Root:         cfg.Storage.Root,
		Product:      cfg.Storage.Product,
		LocaleMask:   locale,
		Keys:         s.keys(cfg, logger),
		StrictKeys:   cfg.Keys.Strict,
		SeedKeys:     s.seedKeys,
		DumpDir:      cfg.Debug.DumpDir,
		CDN:          cfg.CDN.Enabled,
		CDNHosts:     cfg.CDN.HostsOverride,
		CDNTimeout:   timeout,
		FetchIndices: cfg.CDN.FetchIndices,
		Logger:       logger,
	}

	if cfg.Cache.Dir != "" {
		compression, err := assetcache.ParseCompression(cfg.Cache.Compression)
		if err != nil {
			return nil, err
		}
		options.Cache, err = assetcache.New(assetcache.Options{
			Dir:         cfg.Cache.Dir,
			Compression: compression,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Storage.Listfile != "" {
		options.Listfile, err = listfile.Load(cfg.Storage.Listfile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded listfile", "path", cfg.Storage.Listfile, "names", options.Listfile.Len())
	}

	return storage.Open(ctx, options)
}
