package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigInvalid wraps every load-time validation failure. Startup must not
// proceed past it: a missing threshold would otherwise silently permit
// decisions it should gate.
var ErrConfigInvalid = errors.New("config invalid")

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cron      CronConfig      `mapstructure:"cron"`
	Retention RetentionConfig `mapstructure:"retention"`
	Policy    PolicyConfig    `mapstructure:"policy"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	GuardrailCheckpoint string `mapstructure:"guardrail_checkpoint"`
	RetentionCleanup    string `mapstructure:"retention_cleanup"`
}

type RetentionConfig struct {
	AuditDays      int `mapstructure:"audit_days"`
	SettlementDays int `mapstructure:"settlement_days"`
}

// PolicyConfig is the versioned threshold set. Unlike the ambient sections it
// carries no viper defaults: every key must be present in the source document
// and inside its declared range, or Load fails.
type PolicyConfig struct {
	Version   string          `mapstructure:"version"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Gates     GatesConfig     `mapstructure:"gates"`
	HardStops HardStopsConfig `mapstructure:"hard_stops"`
}

type QualityConfig struct {
	Weights                  QualityWeights `mapstructure:"weights"`
	CriticalFailureThreshold float64        `mapstructure:"critical_failure_threshold"`
	MinimumForScoring        float64        `mapstructure:"minimum_for_scoring"`
}

type QualityWeights struct {
	Completeness float64 `mapstructure:"completeness"`
	Validity     float64 `mapstructure:"validity"`
	Consistency  float64 `mapstructure:"consistency"`
	Timeliness   float64 `mapstructure:"timeliness"`
}

type GatesConfig struct {
	EdgeWinner    GateThreshold `mapstructure:"edge_winner"`
	EdgeOverUnder GateThreshold `mapstructure:"edge_over_under"`
	Confidence    GateThreshold `mapstructure:"confidence"`
	Drift         GateThreshold `mapstructure:"drift"`
	WarnMargin    float64       `mapstructure:"warn_margin"`
}

type GateThreshold struct {
	Threshold   float64 `mapstructure:"threshold"`
	Description string  `mapstructure:"description"`
}

type HardStopsConfig struct {
	DailyLossCap         DailyLossCap         `mapstructure:"daily_loss_cap"`
	MaxConsecutiveLosses MaxConsecutiveLosses `mapstructure:"max_consecutive_losses"`
	MaxDrawdown          MaxDrawdown          `mapstructure:"max_drawdown"`
	ManualHalt           ManualHalt           `mapstructure:"manual_halt"`
	DailyCutover         string               `mapstructure:"daily_cutover"`
}

// DailyLossCap halts once the day's summed losses reach Value. A Value of 0
// disables this stop; the consecutive-loss stop stays mandatory (count >= 1).
type DailyLossCap struct {
	Value float64 `mapstructure:"value"`
	Unit  string  `mapstructure:"unit"`
}

type MaxConsecutiveLosses struct {
	Count int `mapstructure:"count"`
}

// MaxDrawdown halts once the windowed drawdown reaches Percent. A Percent of
// 0 disables this stop.
type MaxDrawdown struct {
	Percent    float64 `mapstructure:"percent"`
	WindowDays int     `mapstructure:"window_days"`
}

type ManualHalt struct {
	Enabled bool `mapstructure:"enabled"`
}

// requiredPolicyKeys are validated for presence with IsSet before unmarshal.
// mapstructure zero values are indistinguishable from "key absent", and a
// zero threshold read as "no gate" is exactly the failure mode this blocks.
var requiredPolicyKeys = []string{
	"policy.version",
	"policy.quality.weights.completeness",
	"policy.quality.weights.validity",
	"policy.quality.weights.consistency",
	"policy.quality.weights.timeliness",
	"policy.quality.critical_failure_threshold",
	"policy.quality.minimum_for_scoring",
	"policy.gates.edge_winner.threshold",
	"policy.gates.edge_over_under.threshold",
	"policy.gates.confidence.threshold",
	"policy.gates.drift.threshold",
	"policy.gates.warn_margin",
	"policy.hard_stops.daily_loss_cap.value",
	"policy.hard_stops.daily_loss_cap.unit",
	"policy.hard_stops.max_consecutive_losses.count",
	"policy.hard_stops.max_drawdown.percent",
	"policy.hard_stops.max_drawdown.window_days",
	"policy.hard_stops.manual_halt.enabled",
	"policy.hard_stops.daily_cutover",
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.guardrail_checkpoint", "@every 1m")
	v.SetDefault("cron.retention_cleanup", "@every 6h")
	v.SetDefault("retention.audit_days", 0)
	v.SetDefault("retention.settlement_days", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var missing []string
	for _, key := range requiredPolicyKeys {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing required keys: %s", ErrConfigInvalid, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every policy number against its declared range. Any
// violation is fatal at startup.
func (p PolicyConfig) Validate() error {
	var errs []string

	for name, w := range map[string]float64{
		"quality.weights.completeness": p.Quality.Weights.Completeness,
		"quality.weights.validity":     p.Quality.Weights.Validity,
		"quality.weights.consistency":  p.Quality.Weights.Consistency,
		"quality.weights.timeliness":   p.Quality.Weights.Timeliness,
	} {
		if w < 0 {
			errs = append(errs, name+" must be non-negative")
		}
	}
	if p.Quality.CriticalFailureThreshold < 0 || p.Quality.CriticalFailureThreshold > 1 {
		errs = append(errs, "quality.critical_failure_threshold must be in [0,1]")
	}
	if p.Quality.MinimumForScoring < 0 || p.Quality.MinimumForScoring > 1 {
		errs = append(errs, "quality.minimum_for_scoring must be in [0,1]")
	}
	if p.Quality.MinimumForScoring < p.Quality.CriticalFailureThreshold {
		errs = append(errs, "quality.minimum_for_scoring must be >= quality.critical_failure_threshold")
	}

	for name, g := range map[string]GateThreshold{
		"gates.edge_winner":     p.Gates.EdgeWinner,
		"gates.edge_over_under": p.Gates.EdgeOverUnder,
		"gates.confidence":      p.Gates.Confidence,
		"gates.drift":           p.Gates.Drift,
	} {
		if g.Threshold < 0 || g.Threshold > 1 {
			errs = append(errs, name+".threshold must be in [0,1]")
		}
	}
	if p.Gates.WarnMargin < 0 {
		errs = append(errs, "gates.warn_margin must be non-negative")
	}

	if p.HardStops.DailyLossCap.Value < 0 {
		errs = append(errs, "hard_stops.daily_loss_cap.value must be non-negative")
	}
	if strings.TrimSpace(p.HardStops.DailyLossCap.Unit) == "" {
		errs = append(errs, "hard_stops.daily_loss_cap.unit must be set")
	}
	if p.HardStops.MaxConsecutiveLosses.Count < 1 {
		errs = append(errs, "hard_stops.max_consecutive_losses.count must be at least 1")
	}
	if p.HardStops.MaxDrawdown.Percent < 0 || p.HardStops.MaxDrawdown.Percent > 1 {
		errs = append(errs, "hard_stops.max_drawdown.percent must be in [0,1]")
	}
	if p.HardStops.MaxDrawdown.WindowDays < 1 {
		errs = append(errs, "hard_stops.max_drawdown.window_days must be at least 1")
	}
	if _, err := ParseCutover(p.HardStops.DailyCutover); err != nil {
		errs = append(errs, "hard_stops.daily_cutover: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// ParseCutover parses the daily cutover as HH:MM in UTC, returned as an
// offset from midnight.
func ParseCutover(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
