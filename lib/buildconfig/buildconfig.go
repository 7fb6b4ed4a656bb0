// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/casc/lib/cascerr"
	"github.com/bureau-foundation/casc/lib/hashkey"
)

// BuildInfoName is the file Resolve looks for.
const BuildInfoName = ".build.info"

// Column names read from .build.info.
const (
	ColumnProduct  = "Product"
	ColumnBuildKey = "Build Key"
	ColumnCDNKey   = "CDN Key"
	ColumnCDNHosts = "CDN Hosts"
	ColumnCDNPath  = "CDN Path"
	ColumnVersion  = "Version"
)

// BuildConfig is everything the storage layer needs from the manifest
// chain. It is not modified after Resolve returns.
type BuildConfig struct {
	// InstallDir holds .build.info; DataDir is its Data subdirectory.
	InstallDir string
	DataDir    string

	Product  string
	Version  string
	BuildKey string
	CDNKey   string

	// CDNHosts are bare host names, in the order listed.
	CDNHosts []string
	CDNPath  string

	BuildName string

	// Root is the root manifest's content key.
	Root hashkey.ContentKey

	// EncodingContent is the encoding table's content key. When the
	// build config lists the pair form, EncodingKey is the encoded
	// representation and HasEncodingKey is set.
	EncodingContent hashkey.ContentKey
	EncodingKey     hashkey.EncodingKey
	HasEncodingKey  bool

	// Archives lists the CDN archive names from the CDN config. It is
	// empty when the CDN config is absent locally.
	Archives []string
}

// ArchiveDir holds the data.NNN archives and the .idx files.
func (c *BuildConfig) ArchiveDir() string { return filepath.Join(c.DataDir, "data") }

// IndicesDir holds cached CDN archive indices.
func (c *BuildConfig) IndicesDir() string { return filepath.Join(c.DataDir, "indices") }

// ConfigPath returns the location of a config file named by key:
// dataDir/config/xx/yy/key with the key lower-cased.
func ConfigPath(dataDir, key string) string {
	key = strings.ToLower(key)
	if len(key) < 4 {
		return filepath.Join(dataDir, "config", key)
	}
	return filepath.Join(dataDir, "config", key[0:2], key[2:4], key)
}

// Resolve reads .build.info from root (or root/Data), selects the row
// for product, and follows the build and CDN config files.
func Resolve(root, product string) (*BuildConfig, error) {
	installDir, infoFile, err := openBuildInfo(root)
	if err != nil {
		return nil, err
	}
	rows, err := ParseBuildInfo(infoFile)
	infoFile.Close()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Join(installDir, BuildInfoName), err)
	}

	row, ok := SelectRow(rows, product)
	if !ok {
		return nil, fmt.Errorf("no %s row has a build key: %w", BuildInfoName, cascerr.ErrInvalidConfig)
	}

	config := &BuildConfig{
		InstallDir: installDir,
		DataDir:    filepath.Join(installDir, "Data"),
		Product:    row[ColumnProduct],
		Version:    row[ColumnVersion],
		BuildKey:   strings.ToLower(row[ColumnBuildKey]),
		CDNKey:     strings.ToLower(row[ColumnCDNKey]),
		CDNHosts:   strings.Fields(row[ColumnCDNHosts]),
		CDNPath:    strings.Trim(row[ColumnCDNPath], "/"),
	}

	buildValues, err := readKeyValueFile(ConfigPath(config.DataDir, config.BuildKey))
	if err != nil {
		return nil, fmt.Errorf("reading build config %s: %w", config.BuildKey, err)
	}
	if err := config.applyBuildConfig(buildValues); err != nil {
		return nil, fmt.Errorf("build config %s: %w", config.BuildKey, err)
	}

	if config.CDNKey != "" {
		cdnValues, err := readKeyValueFile(ConfigPath(config.DataDir, config.CDNKey))
		switch {
		case errors.Is(err, cascerr.ErrFileNotFound):
			// Installs without a CDN config still read local archives.
		case err != nil:
			return nil, fmt.Errorf("reading cdn config %s: %w", config.CDNKey, err)
		default:
			config.Archives = cdnValues["archives"]
		}
	}

	return config, nil
}

// openBuildInfo finds .build.info directly under root or under
// root/Data and returns the directory it was found in.
func openBuildInfo(root string) (string, *os.File, error) {
	for _, dir := range []string{root, filepath.Join(root, "Data")} {
		file, err := os.Open(filepath.Join(dir, BuildInfoName))
		if err == nil {
			return dir, file, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("opening %s: %w", BuildInfoName, err)
		}
	}
	return "", nil, fmt.Errorf("%s under %s: %w", BuildInfoName, root, cascerr.ErrFileNotFound)
}

func readKeyValueFile(path string) (map[string][]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, cascerr.ErrFileNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseKeyValueConfig(file)
}

func (c *BuildConfig) applyBuildConfig(values map[string][]string) error {
	if name := values["build-name"]; len(name) > 0 {
		c.BuildName = strings.Join(name, " ")
	}

	rootValue := values["root"]
	if len(rootValue) == 0 {
		return fmt.Errorf("no root entry: %w", cascerr.ErrInvalidConfig)
	}
	root, err := hashkey.ParseContentKey(rootValue[0])
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	c.Root = root

	encoding := values["encoding"]
	if len(encoding) == 0 {
		return fmt.Errorf("no encoding entry: %w", cascerr.ErrInvalidConfig)
	}
	c.EncodingContent, err = hashkey.ParseContentKey(encoding[0])
	if err != nil {
		return fmt.Errorf("encoding content key: %w", err)
	}
	if len(encoding) > 1 {
		c.EncodingKey, err = hashkey.ParseEncodingKey(encoding[1])
		if err != nil {
			return fmt.Errorf("encoding key: %w", err)
		}
		c.HasEncodingKey = true
	}
	return nil
}

// Row is one .build.info row keyed by column name, with the type
// suffix removed.
type Row map[string]string

// ParseBuildInfo reads a .build.info table. Blank lines and lines
// starting with '#' are skipped. Rows with fewer cells than the header
// are padded with empty values.
func ParseBuildInfo(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		columns   []string
		delimiter string
		rows      []Row
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if columns == nil {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if columns == nil {
			delimiter = sniffDelimiter(line)
			for _, header := range strings.Split(line, delimiter) {
				columns = append(columns, columnName(header, delimiter))
			}
			continue
		}

		cells := strings.Split(line, delimiter)
		row := make(Row, len(columns))
		for i, column := range columns {
			if i < len(cells) {
				row[column] = strings.TrimSpace(cells[i])
			} else {
				row[column] = ""
			}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if columns == nil {
		return nil, fmt.Errorf("no header row: %w", cascerr.ErrInvalidConfig)
	}
	return rows, nil
}

func sniffDelimiter(header string) string {
	for _, candidate := range []string{"|", "\t", "!"} {
		if strings.Contains(header, candidate) {
			return candidate
		}
	}
	return "|"
}

// columnName strips the "!TYPE:size" suffix. With '!' as the delimiter
// there is no suffix to strip.
func columnName(header, delimiter string) string {
	header = strings.TrimSpace(header)
	if delimiter != "!" {
		if i := strings.IndexByte(header, '!'); i >= 0 {
			header = header[:i]
		}
	}
	return header
}

// SelectRow returns the row whose Product equals product. Failing that
// (or when product is empty) it returns the first row with a non-empty
// build key.
func SelectRow(rows []Row, product string) (Row, bool) {
	if product != "" {
		for _, row := range rows {
			if row[ColumnProduct] == product && row[ColumnBuildKey] != "" {
				return row, true
			}
		}
	}
	for _, row := range rows {
		if row[ColumnBuildKey] != "" {
			return row, true
		}
	}
	return nil, false
}

// ParseKeyValueConfig reads "key = value value ..." lines. Values are
// split on whitespace. Comments ('#') and lines without '=' are
// skipped. A repeated key keeps its first occurrence.
func ParseKeyValueConfig(r io.Reader) (map[string][]string, error) {
	scanner := bufio.NewScanner(r)
	// archives lines in CDN configs run to hundreds of kilobytes.
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	values := make(map[string][]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := values[key]; seen || key == "" {
			continue
		}
		values[key] = strings.Fields(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
