package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zzenonn/zcrush/internal/crush"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Config holds the application configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	Quiet    bool   `yaml:"quiet"`
	// TunablesProfile names the starting tunables ("optimal" or "legacy").
	// Individual tunables below override the profile when set.
	TunablesProfile string         `yaml:"tunables_profile"`
	Tunables        crush.Tunables `yaml:"-"`
	// Publish is the name under which built maps are published.
	Publish string `yaml:"publish"`
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	tunables, err := parseTunables()
	if err != nil {
		return nil, err
	}

	if viper.GetString("publish") == "" {
		return nil, zerrors.ConfigNotSetError("publish")
	}

	return &Config{
		LogLevel:        viper.GetString("log_level"),
		Quiet:           viper.GetBool("quiet"),
		TunablesProfile: viper.GetString("tunables_profile"),
		Tunables:        tunables,
		Publish:         viper.GetString("publish"),
	}, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.SetEnvPrefix("ZCRUSH")
	viper.AutomaticEnv()

	if rootCmd != nil {
		if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("quiet", false)
	viper.SetDefault("tunables_profile", "optimal")
	viper.SetDefault("publish", "default")
}

// parseTunables starts from the configured profile and applies any
// tunables.* overrides.
func parseTunables() (crush.Tunables, error) {
	t, err := crush.TunablesProfile(viper.GetString("tunables_profile"))
	if err != nil {
		return crush.Tunables{}, err
	}

	if viper.IsSet("tunables.choose_local_tries") {
		t.ChooseLocalTries = viper.GetUint32("tunables.choose_local_tries")
	}
	if viper.IsSet("tunables.choose_local_fallback_tries") {
		t.ChooseLocalFallbackTries = viper.GetUint32("tunables.choose_local_fallback_tries")
	}
	if viper.IsSet("tunables.choose_total_tries") {
		t.ChooseTotalTries = viper.GetUint32("tunables.choose_total_tries")
	}
	if viper.IsSet("tunables.chooseleaf_descend_once") {
		t.ChooseleafDescendOnce = viper.GetUint32("tunables.chooseleaf_descend_once")
	}
	if viper.IsSet("tunables.chooseleaf_vary_r") {
		t.ChooseleafVaryR = uint8(viper.GetUint("tunables.chooseleaf_vary_r"))
	}
	if viper.IsSet("tunables.chooseleaf_stable") {
		t.ChooseleafStable = uint8(viper.GetUint("tunables.chooseleaf_stable"))
	}
	if viper.IsSet("tunables.straw_calc_version") {
		t.StrawCalcVersion = uint8(viper.GetUint("tunables.straw_calc_version"))
	}
	if viper.IsSet("tunables.allowed_bucket_algs") {
		mask, err := parseAlgorithmMask(viper.GetStringSlice("tunables.allowed_bucket_algs"))
		if err != nil {
			return crush.Tunables{}, err
		}
		t.AllowedBucketAlgs = mask
	}

	return t, nil
}

func parseAlgorithmMask(names []string) (uint32, error) {
	var mask uint32
	for _, name := range names {
		alg, err := crush.ParseAlgorithm(name)
		if err != nil {
			return 0, fmt.Errorf("allowed_bucket_algs: %w", err)
		}
		mask |= alg.Mask()
	}
	return mask, nil
}

// SetConfigValue sets a configuration value (used for CLI flags)
func SetConfigValue(key string, value interface{}) {
	viper.Set(key, value)
}
