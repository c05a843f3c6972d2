package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Decision     DecisionConfig     `mapstructure:"decision"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// CriteriaWeights holds the per-criterion weights of the decision engine.
// They must sum to exactly 1.0; startup fails otherwise.
type CriteriaWeights struct {
	Recurrence    float64 `mapstructure:"recurrence"`
	Trust         float64 `mapstructure:"trust"`
	Amount        float64 `mapstructure:"amount"`
	DateProximity float64 `mapstructure:"date_proximity"`
	PurchaseOrder float64 `mapstructure:"purchase_order"`
	ApprovalRatio float64 `mapstructure:"approval_ratio"`
}

// Sum returns the total of all criterion weights
func (w CriteriaWeights) Sum() float64 {
	return w.Recurrence + w.Trust + w.Amount + w.DateProximity + w.PurchaseOrder + w.ApprovalRatio
}

// DecisionConfig holds the decision engine thresholds
type DecisionConfig struct {
	CVThresholdFixed          float64         `mapstructure:"cv_threshold_fixed"`
	CVThresholdVariable       float64         `mapstructure:"cv_threshold_variable"`
	MinPaymentsFixed          int             `mapstructure:"min_payments_fixed"`
	MinPaymentsVariable       int             `mapstructure:"min_payments_variable"`
	AutoApproveConfidence     float64         `mapstructure:"auto_approve_confidence"`
	ManualReviewFloor         float64         `mapstructure:"manual_review_floor"`
	MaxAutoApproveAmount      float64         `mapstructure:"max_auto_approve_amount"`
	DateProximityDays         int             `mapstructure:"date_proximity_days"`
	AmountCeilingVariationPct float64         `mapstructure:"amount_ceiling_variation_pct"`
	Weights                   CriteriaWeights `mapstructure:"weights"`
	TrustedProviders          []string        `mapstructure:"trusted_providers"`
}

// AnalysisConfig holds the pattern analyzer settings
type AnalysisConfig struct {
	DefaultWindowMonths int     `mapstructure:"default_window_months"`
	EligibleCVVariable  float64 `mapstructure:"eligible_cv_variable"`
	KeepExistingOnTie   bool    `mapstructure:"keep_existing_on_tie"`
}

// NotificationConfig holds the verdict notification settings
type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/invoice-autopilot.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Decision engine defaults
	viper.SetDefault("decision.cv_threshold_fixed", 5.0)
	viper.SetDefault("decision.cv_threshold_variable", 30.0)
	viper.SetDefault("decision.min_payments_fixed", 3)
	viper.SetDefault("decision.min_payments_variable", 5)
	viper.SetDefault("decision.auto_approve_confidence", 0.85)
	viper.SetDefault("decision.manual_review_floor", 0.40)
	viper.SetDefault("decision.max_auto_approve_amount", 10000.0)
	viper.SetDefault("decision.date_proximity_days", 7)
	viper.SetDefault("decision.amount_ceiling_variation_pct", 20.0)
	viper.SetDefault("decision.weights.recurrence", 0.35)
	viper.SetDefault("decision.weights.trust", 0.20)
	viper.SetDefault("decision.weights.amount", 0.15)
	viper.SetDefault("decision.weights.date_proximity", 0.15)
	viper.SetDefault("decision.weights.purchase_order", 0.10)
	viper.SetDefault("decision.weights.approval_ratio", 0.05)

	// Analysis defaults
	viper.SetDefault("analysis.default_window_months", 12)
	viper.SetDefault("analysis.eligible_cv_variable", 25.0)
	viper.SetDefault("analysis.keep_existing_on_tie", true)

	// Notification defaults
	viper.SetDefault("notification.timeout", 10*time.Second)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("notification.webhook_url", "NOTIFICATION_WEBHOOK_URL")
	viper.BindEnv("server.port", "SERVER_PORT")
}

// Validate validates the configuration. Invalid thresholds or weights are a
// startup failure, never silently clamped.
func (c *Config) Validate() error {
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the decision thresholds and criterion weights
func (d *DecisionConfig) Validate() error {
	if diff := math.Abs(d.Weights.Sum() - 1.0); diff > 1e-9 {
		return fmt.Errorf("decision criterion weights must sum to 1.0, got %.4f", d.Weights.Sum())
	}

	percents := map[string]float64{
		"decision.cv_threshold_fixed":           d.CVThresholdFixed,
		"decision.cv_threshold_variable":        d.CVThresholdVariable,
		"decision.amount_ceiling_variation_pct": d.AmountCeilingVariationPct,
	}
	for name, v := range percents {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0,100], got %.2f", name, v)
		}
	}

	if d.CVThresholdFixed >= d.CVThresholdVariable {
		return fmt.Errorf("decision.cv_threshold_fixed (%.2f) must be below decision.cv_threshold_variable (%.2f)",
			d.CVThresholdFixed, d.CVThresholdVariable)
	}

	confidences := map[string]float64{
		"decision.auto_approve_confidence": d.AutoApproveConfidence,
		"decision.manual_review_floor":     d.ManualReviewFloor,
	}
	for name, v := range confidences {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %.2f", name, v)
		}
	}
	if d.ManualReviewFloor >= d.AutoApproveConfidence {
		return fmt.Errorf("decision.manual_review_floor (%.2f) must be below decision.auto_approve_confidence (%.2f)",
			d.ManualReviewFloor, d.AutoApproveConfidence)
	}

	if d.MaxAutoApproveAmount <= 0 {
		return fmt.Errorf("decision.max_auto_approve_amount must be positive, got %.2f", d.MaxAutoApproveAmount)
	}
	if d.DateProximityDays < 0 {
		return fmt.Errorf("decision.date_proximity_days must not be negative, got %d", d.DateProximityDays)
	}
	if d.MinPaymentsFixed < 2 || d.MinPaymentsVariable < 2 {
		return fmt.Errorf("minimum payment counts must be at least 2 (fixed=%d, variable=%d)",
			d.MinPaymentsFixed, d.MinPaymentsVariable)
	}

	return nil
}

// Validate checks the analysis settings
func (a *AnalysisConfig) Validate() error {
	if a.DefaultWindowMonths <= 0 {
		return fmt.Errorf("analysis.default_window_months must be positive, got %d", a.DefaultWindowMonths)
	}
	if a.EligibleCVVariable < 0 || a.EligibleCVVariable > 100 {
		return fmt.Errorf("analysis.eligible_cv_variable must be within [0,100], got %.2f", a.EligibleCVVariable)
	}
	return nil
}

// IsTrusted reports whether a provider is in the explicit allow-list
func (d *DecisionConfig) IsTrusted(providerID string) bool {
	for _, p := range d.TrustedProviders {
		if p == providerID {
			return true
		}
	}
	return false
}
