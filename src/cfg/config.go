package cfg

import (
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "XALOG"

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}

type Config struct {
	Environment Environment `default:"dev"`

	DataDir string `split_words:"true" default:"data"`
	LogName string `split_words:"true" default:"tm_tx_log.1"`

	PageSize     int    `split_words:"true" default:"4096"`
	CachePages   uint64 `split_words:"true" default:"64"`
	FlushWorkers int    `split_words:"true" default:"4"`
}

// Load reads the .env file at path, or ./.env when path is empty and the
// file exists, and then the XALOG_* environment variables.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, errors.Wrapf(err, "load %s", path)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return errors.Wrap(err, "environment validation")
	}

	switch {
	case c.DataDir == "":
		return errors.New("data dir must be set")
	case c.LogName == "" || filepath.Base(c.LogName) != c.LogName:
		return errors.Errorf("log name %q must be a plain file name", c.LogName)
	case c.PageSize < 8 || c.PageSize&(c.PageSize-1) != 0:
		return errors.Errorf("page size %d must be a power of two of at least 8", c.PageSize)
	case c.CachePages == 0:
		return errors.New("cache must hold at least one page")
	case c.FlushWorkers < 1:
		return errors.New("at least one flush worker is required")
	}

	return nil
}

func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, c.LogName)
}
