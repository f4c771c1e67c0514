package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/emissary/audit"
)

const (
	EnvAuditMaxDeviation  = "EMISSARY_AUDIT_MAX_DEVIATION_PERCENT"
	EnvAuditMinTrustScore = "EMISSARY_AUDIT_MIN_TRUST_SCORE"
	EnvAuditMaxPages      = "EMISSARY_AUDIT_MAX_PAGES"
	EnvAuditMode          = "EMISSARY_AUDIT_MODE"
	EnvAuditReportDir     = "EMISSARY_AUDIT_REPORT_DIR"
	EnvAuditBatchWorkers  = "EMISSARY_AUDIT_BATCH_WORKERS"
	EnvAuditRiskEscalate  = "EMISSARY_AUDIT_RISK_ESCALATION"
	EnvAuditFactorsFile   = "EMISSARY_AUDIT_FACTORS_FILE"
)

// AuditConfig holds the thresholds and execution settings of the pipeline.
type AuditConfig struct {
	MaxDeviationPercent float64 `toml:"max_deviation_percent"`
	MinTrustScore       float64 `toml:"min_trust_score"`
	MaxPages            int     `toml:"max_pages"`
	Mode                string  `toml:"mode"`
	ReportDir           string  `toml:"report_dir"`
	BatchWorkers        int     `toml:"batch_workers"`
	RiskEscalation      bool    `toml:"risk_escalation"`
	FactorsFile         string  `toml:"factors_file"`
}

// ExecutionMode returns Mode parsed. Finalize has already validated it.
func (c *AuditConfig) ExecutionMode() audit.ExecutionMode {
	m, _ := audit.ParseExecutionMode(c.Mode)
	return m
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AuditConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. RiskEscalation only turns on.
func (c *AuditConfig) Merge(overlay *AuditConfig) {
	if overlay.MaxDeviationPercent != 0 {
		c.MaxDeviationPercent = overlay.MaxDeviationPercent
	}
	if overlay.MinTrustScore != 0 {
		c.MinTrustScore = overlay.MinTrustScore
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
	if overlay.Mode != "" {
		c.Mode = overlay.Mode
	}
	if overlay.ReportDir != "" {
		c.ReportDir = overlay.ReportDir
	}
	if overlay.BatchWorkers != 0 {
		c.BatchWorkers = overlay.BatchWorkers
	}
	if overlay.RiskEscalation {
		c.RiskEscalation = true
	}
	if overlay.FactorsFile != "" {
		c.FactorsFile = overlay.FactorsFile
	}
}

func (c *AuditConfig) loadDefaults() {
	if c.MaxDeviationPercent == 0 {
		c.MaxDeviationPercent = 15
	}
	if c.MinTrustScore == 0 {
		c.MinTrustScore = 60
	}
	if c.MaxPages == 0 {
		c.MaxPages = 50
	}
	if c.Mode == "" {
		c.Mode = string(audit.ModeAssisted)
	}
	if c.ReportDir == "" {
		c.ReportDir = "output"
	}
	if c.BatchWorkers == 0 {
		c.BatchWorkers = 4
	}
}

func (c *AuditConfig) loadEnv() {
	if v := os.Getenv(EnvAuditMaxDeviation); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MaxDeviationPercent = f
		}
	}
	if v := os.Getenv(EnvAuditMinTrustScore); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinTrustScore = f
		}
	}
	if v := os.Getenv(EnvAuditMaxPages); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPages = n
		}
	}
	if v := os.Getenv(EnvAuditMode); v != "" {
		c.Mode = v
	}
	if v := os.Getenv(EnvAuditReportDir); v != "" {
		c.ReportDir = v
	}
	if v := os.Getenv(EnvAuditBatchWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchWorkers = n
		}
	}
	if v := os.Getenv(EnvAuditRiskEscalate); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RiskEscalation = b
		}
	}
	if v := os.Getenv(EnvAuditFactorsFile); v != "" {
		c.FactorsFile = v
	}
}

func (c *AuditConfig) validate() error {
	if c.MaxDeviationPercent <= 0 {
		return fmt.Errorf("max_deviation_percent must be positive")
	}
	if c.MinTrustScore < 0 || c.MinTrustScore > 100 {
		return fmt.Errorf("min_trust_score must be within 0-100")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch_workers must be at least 1")
	}
	if _, err := audit.ParseExecutionMode(c.Mode); err != nil {
		return err
	}
	return nil
}
