package runtime

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/fortiblox/X1-Crowdfund/pkg/svm"
)

// envPrefix is prepended to every configuration key to form its
// environment variable, e.g. CROWDFUND_COMPUTE_LIMIT.
const envPrefix = "CROWDFUND_"

// Config holds runtime configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// ComputeLimit is the compute budget of one transaction.
	ComputeLimit uint64 `mapstructure:"compute_limit"`

	LamportsPerByteYear uint64  `mapstructure:"rent_lamports_per_byte_year"`
	ExemptionThreshold  float64 `mapstructure:"rent_exemption_threshold"`

	// SkipSignatureVerification trusts the signer flags of a transaction
	// without checking its signatures.
	SkipSignatureVerification bool `mapstructure:"skip_signature_verification"`

	// AccountsPath is the Badger directory. Empty keeps accounts in memory.
	AccountsPath string `mapstructure:"accounts_path"`

	// JournalPath is the receipt database file. Empty disables the journal,
	// which is only allowed with in-memory accounts.
	JournalPath string `mapstructure:"journal_path"`

	// JournalRetain is the number of receipt bodies kept. Zero keeps all.
	JournalRetain uint64 `mapstructure:"journal_retain"`
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	rent := svm.DefaultRent()
	return Config{
		LogLevel:            "info",
		ComputeLimit:        svm.CUDefault,
		LamportsPerByteYear: rent.LamportsPerByteYear,
		ExemptionThreshold:  rent.ExemptionThreshold,
		JournalRetain:       100_000,
	}
}

// Rent returns the rent parameters programs are executed with.
func (c Config) Rent() svm.Rent {
	return svm.Rent{
		LamportsPerByteYear: c.LamportsPerByteYear,
		ExemptionThreshold:  c.ExemptionThreshold,
	}
}

// LoadConfig reads the runtime configuration from v. Every key falls back to
// DefaultConfig and can be overridden from the environment.
func LoadConfig(v *viper.Viper) (Config, error) {
	defaults := DefaultConfig()
	for key, value := range map[string]interface{}{
		"log_level":                   defaults.LogLevel,
		"compute_limit":               defaults.ComputeLimit,
		"rent_lamports_per_byte_year": defaults.LamportsPerByteYear,
		"rent_exemption_threshold":    defaults.ExemptionThreshold,
		"skip_signature_verification": defaults.SkipSignatureVerification,
		"accounts_path":               defaults.AccountsPath,
		"journal_path":                defaults.JournalPath,
		"journal_retain":              defaults.JournalRetain,
	} {
		v.SetDefault(key, value)
		_ = v.BindEnv(key, envPrefix+strings.ToUpper(key))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
