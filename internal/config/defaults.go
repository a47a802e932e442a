package config

const (
	defaultStagingDir  = "~/.local/share/adsplice/staging"
	defaultOutputDir   = "~/videos/adsplice"
	defaultLogDir      = "~/.local/share/adsplice/logs"
	defaultReviewDir   = "~/review"
	defaultWorkflowDir = "~/.config/adsplice/workflows"
	defaultAPIBind     = "127.0.0.1:7603"

	defaultExecutorHost           = "127.0.0.1"
	defaultExecutorPort           = 8188
	defaultExecutorProtocol       = "http"
	defaultExecutorRequestTimeout = 30
	defaultExecutorPollInterval   = 3
	defaultExecutorMaxAttempts    = 5
	defaultExecutorRetryBaseDelay = 2
	defaultExecutorRetryMaxDelay  = 30
	defaultImageCleanTimeout      = 300
	defaultVoiceCloneTimeout      = 300
	defaultDigitalHumanTimeout    = 600
	defaultImageCleanWorkflow     = "image_clean.json"
	defaultVoiceCloneWorkflow     = "voice_clone.json"
	defaultDigitalHumanWorkflow   = "digital_human.json"
	defaultStageMaxAttempts       = 2

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTitle          = "Adsplice Planner"
	defaultLLMTimeoutSeconds = 60

	defaultAdsCatalogPath = "~/.config/adsplice/ads.toml"

	defaultMinDurationSeconds = 15
	defaultMaxDurationSeconds = 300
	defaultAvoidStartSeconds  = 3.0
	defaultAvoidEndSeconds    = 5.0
	defaultSemanticWeight     = 0.4
	defaultFaceWeight         = 0.6

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 600

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:  defaultStagingDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
			ReviewDir:   defaultReviewDir,
			WorkflowDir: defaultWorkflowDir,
			APIBind:     defaultAPIBind,
		},
		Executor: Executor{
			Host:                 defaultExecutorHost,
			Port:                 defaultExecutorPort,
			Protocol:             defaultExecutorProtocol,
			RequestTimeout:       defaultExecutorRequestTimeout,
			PollInterval:         defaultExecutorPollInterval,
			MaxAttempts:          defaultExecutorMaxAttempts,
			RetryBaseDelay:       defaultExecutorRetryBaseDelay,
			RetryMaxDelay:        defaultExecutorRetryMaxDelay,
			ImageCleanTimeout:    defaultImageCleanTimeout,
			VoiceCloneTimeout:    defaultVoiceCloneTimeout,
			DigitalHumanTimeout:  defaultDigitalHumanTimeout,
			ImageCleanWorkflow:   defaultImageCleanWorkflow,
			VoiceCloneWorkflow:   defaultVoiceCloneWorkflow,
			DigitalHumanWorkflow: defaultDigitalHumanWorkflow,
			StageMaxAttempts:     defaultStageMaxAttempts,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Ads: Ads{
			CatalogPath: defaultAdsCatalogPath,
		},
		Video: Video{
			MinDurationSeconds: defaultMinDurationSeconds,
			MaxDurationSeconds: defaultMaxDurationSeconds,
			AvoidStartSeconds:  defaultAvoidStartSeconds,
			AvoidEndSeconds:    defaultAvoidEndSeconds,
			SemanticWeight:     defaultSemanticWeight,
			FaceWeight:         defaultFaceWeight,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Analysis:           true,
			Planning:           true,
			Generation:         true,
			Composition:        true,
			Queue:              true,
			Review:             true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
