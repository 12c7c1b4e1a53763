package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when present and no explicit config file is given.
const DefaultPath = "/etc/lampctl/config.yaml"

// Init systems used to reload the web server.
const (
	InitSystemd = "systemd"
	InitDirect  = "direct"
)

type Config struct {
	WebRoot        string `yaml:"web_root"`
	SitesAvailable string `yaml:"sites_available"`
	SitesEnabled   string `yaml:"sites_enabled"`
	ApacheLogDir   string `yaml:"apache_log_dir"`
	HostsFile      string `yaml:"hosts_file"`
	HostsIP        string `yaml:"hosts_ip"`
	WebOwner       string `yaml:"web_owner"`
	LetsEncryptDir string `yaml:"letsencrypt_dir"`
	// InitSystem selects how the web server is reloaded.
	// "systemd" for regular hosts, "direct" inside containers.
	InitSystem string `yaml:"init_system"`

	LockPaths        []string      `yaml:"lock_paths"`
	LockPollInterval time.Duration `yaml:"lock_poll_interval"`
	LockCeiling      time.Duration `yaml:"lock_ceiling"`

	CMSArchiveURL  string        `yaml:"cms_archive_url"`
	CMSTimeout     time.Duration `yaml:"cms_timeout"`
	S3Endpoint     string        `yaml:"s3_endpoint"`
	S3Region       string        `yaml:"s3_region"`
	S3AccessKey    string        `yaml:"s3_access_key"`
	S3SecretKey    string        `yaml:"-"`
	CertbotEmail   string        `yaml:"certbot_email"`
	DBRootPassEnv  string        `yaml:"db_root_pass_env"`
	LogLevel       string        `yaml:"log_level"`
	MetricsFile    string        `yaml:"metrics_file"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Default returns the configuration for a stock Ubuntu Apache host.
func Default() *Config {
	return &Config{
		WebRoot:        "/var/www",
		SitesAvailable: "/etc/apache2/sites-available",
		SitesEnabled:   "/etc/apache2/sites-enabled",
		ApacheLogDir:   "/var/log/apache2",
		HostsFile:      "/etc/hosts",
		HostsIP:        "127.0.0.1",
		WebOwner:       "www-data",
		LetsEncryptDir: "/etc/letsencrypt",
		InitSystem:     InitSystemd,
		LockPaths: []string{
			"/var/lib/dpkg/lock-frontend",
			"/var/lib/dpkg/lock",
			"/var/lib/apt/lists/lock",
		},
		LockPollInterval: time.Second,
		LockCeiling:      time.Hour,
		CMSArchiveURL:    "https://wordpress.org/latest.tar.gz",
		CMSTimeout:       5 * time.Minute,
		S3Region:         "us-east-1",
		DBRootPassEnv:    "LAMPCTL_DB_ROOT_PASS",
		LogLevel:         "info",
		CommandTimeout:   30 * time.Minute,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or DefaultPath when path is empty and the file exists), then LAMPCTL_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getEnv("LAMPCTL_CONFIG", "")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.WebRoot = getEnv("LAMPCTL_WEB_ROOT", cfg.WebRoot)
	cfg.SitesAvailable = getEnv("LAMPCTL_SITES_AVAILABLE", cfg.SitesAvailable)
	cfg.SitesEnabled = getEnv("LAMPCTL_SITES_ENABLED", cfg.SitesEnabled)
	cfg.ApacheLogDir = getEnv("LAMPCTL_APACHE_LOG_DIR", cfg.ApacheLogDir)
	cfg.HostsFile = getEnv("LAMPCTL_HOSTS_FILE", cfg.HostsFile)
	cfg.HostsIP = getEnv("LAMPCTL_HOSTS_IP", cfg.HostsIP)
	cfg.WebOwner = getEnv("LAMPCTL_WEB_OWNER", cfg.WebOwner)
	cfg.InitSystem = getEnv("LAMPCTL_INIT_SYSTEM", cfg.InitSystem)
	cfg.CMSArchiveURL = getEnv("LAMPCTL_CMS_ARCHIVE_URL", cfg.CMSArchiveURL)
	cfg.S3Endpoint = getEnv("LAMPCTL_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getEnv("LAMPCTL_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("LAMPCTL_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.CertbotEmail = getEnv("LAMPCTL_CERTBOT_EMAIL", cfg.CertbotEmail)
	cfg.LogLevel = getEnv("LAMPCTL_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsFile = getEnv("LAMPCTL_METRICS_FILE", cfg.MetricsFile)
	if v := getEnv("LAMPCTL_LOCK_PATHS", ""); v != "" {
		cfg.LockPaths = strings.Split(v, ":")
	}
	if cfg.LockPollInterval, err = getDuration("LAMPCTL_LOCK_POLL_INTERVAL", cfg.LockPollInterval); err != nil {
		return nil, err
	}
	if cfg.LockCeiling, err = getDuration("LAMPCTL_LOCK_CEILING", cfg.LockCeiling); err != nil {
		return nil, err
	}
	if cfg.CMSTimeout, err = getDuration("LAMPCTL_CMS_TIMEOUT", cfg.CMSTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var missing []string
	if c.WebRoot == "" || !filepath.IsAbs(c.WebRoot) {
		missing = append(missing, "web_root must be an absolute path")
	}
	if c.SitesAvailable == "" {
		missing = append(missing, "sites_available is required")
	}
	if c.HostsFile == "" {
		missing = append(missing, "hosts_file is required")
	}
	if c.HostsIP == "" {
		missing = append(missing, "hosts_ip is required")
	}
	if len(c.LockPaths) == 0 {
		missing = append(missing, "lock_paths must not be empty")
	}
	if c.LockPollInterval <= 0 {
		missing = append(missing, "lock_poll_interval must be positive")
	}
	if c.LockCeiling < c.LockPollInterval {
		missing = append(missing, "lock_ceiling must not be shorter than lock_poll_interval")
	}
	switch c.InitSystem {
	case InitSystemd, InitDirect:
	default:
		missing = append(missing, fmt.Sprintf("init_system %q must be systemd or direct", c.InitSystem))
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(missing, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or bare seconds ("90").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
