package driver

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// cmsTopDir is the single top-level directory of the upstream archive.
const cmsTopDir = "wordpress"

// CMSInstaller downloads the CMS archive into a document root and writes its
// configuration file.
type CMSInstaller struct {
	logger  zerolog.Logger
	fetcher Fetcher
	source  string
}

// NewCMSInstaller creates a CMSInstaller reading from source by default.
func NewCMSInstaller(logger zerolog.Logger, fetcher Fetcher, source string) *CMSInstaller {
	return &CMSInstaller{
		logger:  logger.With().Str("component", "cms-installer").Logger(),
		fetcher: fetcher,
		source:  source,
	}
}

// Source returns the archive location used when override is empty.
func (c *CMSInstaller) Source(override string) string {
	if override != "" {
		return override
	}
	return c.source
}

// DBSettings are substituted into the generated configuration.
type DBSettings struct {
	Name     string
	User     string
	Password string
}

// Install fetches and unpacks the archive into docRoot, then generates
// wp-config.php from the bundled sample.
func (c *CMSInstaller) Install(ctx context.Context, docRoot, source string, db DBSettings) error {
	source = c.Source(source)

	tmp, err := os.CreateTemp("", "lampctl-cms-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := c.fetcher.Fetch(ctx, source, tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	n, err := Unpack(tmp, docRoot, cmsTopDir)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", source, err)
	}
	c.logger.Info().Str("doc_root", docRoot).Int("entries", n).Msg("unpacked archive")

	return WriteWPConfig(docRoot, db)
}

// Unpack extracts a gzip compressed tar stream into dest. A leading strip
// directory is removed from every entry name. Entries escaping dest are
// rejected. It returns the number of entries written.
func Unpack(r io.Reader, dest, strip string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("tar: %w", err)
		}

		name := strings.TrimPrefix(filepath.ToSlash(hdr.Name), "./")
		if strip != "" {
			if name == strip || name == strip+"/" {
				continue
			}
			name = strings.TrimPrefix(name, strip+"/")
		}
		if name == "" {
			continue
		}
		target := filepath.Join(absDest, filepath.FromSlash(name))
		if target != absDest && !strings.HasPrefix(target, absDest+string(filepath.Separator)) {
			return count, fmt.Errorf("entry %q escapes %s", hdr.Name, dest)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return count, err
			}
		default:
			// Links and devices are not part of the CMS archive.
			continue
		}
		count++
	}
}

func writeEntry(path string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteWPConfig renders wp-config.php from wp-config-sample.php.
func WriteWPConfig(docRoot string, db DBSettings) error {
	sample := filepath.Join(docRoot, "wp-config-sample.php")
	data, err := os.ReadFile(sample)
	if err != nil {
		return fmt.Errorf("read config sample: %w", err)
	}
	text := strings.NewReplacer(
		"database_name_here", db.Name,
		"username_here", db.User,
		"password_here", phpQuote(db.Password),
	).Replace(string(data))

	path := filepath.Join(docRoot, "wp-config.php")
	if err := os.WriteFile(path, []byte(text), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// phpQuote escapes s for a single quoted PHP string literal.
func phpQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// WPConfig holds the database settings read back from wp-config.php.
type WPConfig struct {
	DBName      string
	DBUser      string
	DBHost      string
	TablePrefix string
}

var (
	wpDefineRe = regexp.MustCompile(`define\(\s*['"](DB_NAME|DB_USER|DB_HOST)['"]\s*,\s*['"]([^'"]*)['"]\s*\)`)
	wpPrefixRe = regexp.MustCompile(`\$table_prefix\s*=\s*['"]([^'"]*)['"]`)
)

// ReadWPConfig parses the database settings from docRoot/wp-config.php.
func ReadWPConfig(docRoot string) (WPConfig, error) {
	data, err := os.ReadFile(filepath.Join(docRoot, "wp-config.php"))
	if err != nil {
		return WPConfig{}, err
	}
	var cfg WPConfig
	for _, m := range wpDefineRe.FindAllStringSubmatch(string(data), -1) {
		switch m[1] {
		case "DB_NAME":
			cfg.DBName = m[2]
		case "DB_USER":
			cfg.DBUser = m[2]
		case "DB_HOST":
			cfg.DBHost = m[2]
		}
	}
	if m := wpPrefixRe.FindStringSubmatch(string(data)); m != nil {
		cfg.TablePrefix = m[1]
	}
	return cfg, nil
}
