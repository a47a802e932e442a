package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeExecutor(); err != nil {
		return err
	}
	c.normalizeLLM()
	if err := c.normalizeAds(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ReviewDir, err = expandPath(c.Paths.ReviewDir); err != nil {
		return fmt.Errorf("paths.review_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkflowDir) == "" {
		c.Paths.WorkflowDir = defaultWorkflowDir
	}
	if c.Paths.WorkflowDir, err = expandPath(c.Paths.WorkflowDir); err != nil {
		return fmt.Errorf("paths.workflow_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeExecutor() error {
	c.Executor.Host = strings.TrimSpace(c.Executor.Host)
	if c.Executor.Host == "" {
		c.Executor.Host = defaultExecutorHost
	}
	if c.Executor.Port <= 0 {
		c.Executor.Port = defaultExecutorPort
	}
	c.Executor.Protocol = strings.ToLower(strings.TrimSpace(c.Executor.Protocol))
	if c.Executor.Protocol == "" {
		c.Executor.Protocol = defaultExecutorProtocol
	}
	if c.Executor.RequestTimeout <= 0 {
		c.Executor.RequestTimeout = defaultExecutorRequestTimeout
	}
	if c.Executor.PollInterval <= 0 {
		c.Executor.PollInterval = defaultExecutorPollInterval
	}
	if c.Executor.MaxAttempts <= 0 {
		c.Executor.MaxAttempts = defaultExecutorMaxAttempts
	}
	if c.Executor.RetryBaseDelay <= 0 {
		c.Executor.RetryBaseDelay = defaultExecutorRetryBaseDelay
	}
	if c.Executor.RetryMaxDelay <= 0 {
		c.Executor.RetryMaxDelay = defaultExecutorRetryMaxDelay
	}
	if c.Executor.StageMaxAttempts <= 0 {
		c.Executor.StageMaxAttempts = defaultStageMaxAttempts
	}
	for name, value := range map[string]*string{
		"executor.image_clean_workflow":   &c.Executor.ImageCleanWorkflow,
		"executor.voice_clone_workflow":   &c.Executor.VoiceCloneWorkflow,
		"executor.digital_human_workflow": &c.Executor.DigitalHumanWorkflow,
	} {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("ADSPLICE_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeAds() error {
	var err error
	if strings.TrimSpace(c.Ads.CatalogPath) == "" {
		c.Ads.CatalogPath = defaultAdsCatalogPath
	}
	if c.Ads.CatalogPath, err = expandPath(c.Ads.CatalogPath); err != nil {
		return fmt.Errorf("ads.catalog_path: %w", err)
	}
	c.Ads.DefaultTheme = strings.ToLower(strings.TrimSpace(c.Ads.DefaultTheme))
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
