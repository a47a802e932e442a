package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if c.Executor.Protocol != "http" && c.Executor.Protocol != "https" {
		return fmt.Errorf("executor.protocol must be http or https, got %q", c.Executor.Protocol)
	}
	if c.Executor.Port < 1 || c.Executor.Port > 65535 {
		return errors.New("executor.port must be between 1 and 65535")
	}
	if err := ensurePositiveMap(map[string]int{
		"executor.request_timeout":       c.Executor.RequestTimeout,
		"executor.poll_interval":         c.Executor.PollInterval,
		"executor.max_attempts":          c.Executor.MaxAttempts,
		"executor.retry_base_delay":      c.Executor.RetryBaseDelay,
		"executor.retry_max_delay":       c.Executor.RetryMaxDelay,
		"executor.image_clean_timeout":   c.Executor.ImageCleanTimeout,
		"executor.voice_clone_timeout":   c.Executor.VoiceCloneTimeout,
		"executor.digital_human_timeout": c.Executor.DigitalHumanTimeout,
		"executor.stage_max_attempts":    c.Executor.StageMaxAttempts,
	}); err != nil {
		return err
	}
	if c.Executor.RetryMaxDelay < c.Executor.RetryBaseDelay {
		return errors.New("executor.retry_max_delay must be >= executor.retry_base_delay")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/adsplice/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'adsplice config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.Video.MinDurationSeconds <= 0 {
		return errors.New("video.min_duration_seconds must be positive")
	}
	if c.Video.MaxDurationSeconds <= c.Video.MinDurationSeconds {
		return errors.New("video.max_duration_seconds must be greater than video.min_duration_seconds")
	}
	if c.Video.AvoidStartSeconds < 0 {
		return errors.New("video.avoid_start_seconds must be >= 0")
	}
	if c.Video.AvoidEndSeconds < 0 {
		return errors.New("video.avoid_end_seconds must be >= 0")
	}
	if c.Video.SemanticWeight < 0 || c.Video.SemanticWeight > 1 {
		return errors.New("video.semantic_weight must be between 0 and 1")
	}
	if c.Video.FaceWeight < 0 || c.Video.FaceWeight > 1 {
		return errors.New("video.face_weight must be between 0 and 1")
	}
	if math.Abs(c.Video.SemanticWeight+c.Video.FaceWeight-1.0) > 1e-9 {
		return errors.New("video.semantic_weight and video.face_weight must sum to 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
