package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL           time.Duration `envconfig:"CONVERSATION_TTL" default:"72h"`
	HistoryWindow int           `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"10"`
}

type GeminiConfig struct {
	APIKey      string  `envconfig:"GEMINI_API_KEY"`
	BaseURL     string  `envconfig:"GEMINI_BASE_URL"`
	AgentModel  string  `envconfig:"GEMINI_AGENT_MODEL" default:"gemini-2.5-flash"`
	TextModel   string  `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash-lite"`
	ImageModel  string  `envconfig:"GEMINI_IMAGE_MODEL" default:"imagen-4.0-generate-001"`
	MaxTokens   int     `envconfig:"GEMINI_MAX_TOKENS" default:"8192"`
	Temperature float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.2"`
}

type OpenAIConfig struct {
	APIKey      string `envconfig:"OPENAI_API_KEY"`
	BaseURL     string `envconfig:"OPENAI_BASE_URL"`
	AgentModel  string `envconfig:"OPENAI_AGENT_MODEL" default:"gpt-4o-mini"`
	ImageModel  string `envconfig:"OPENAI_IMAGE_MODEL" default:"dall-e-3"`
	SpeechModel string `envconfig:"OPENAI_SPEECH_MODEL" default:"tts-1"`
	Voice       string `envconfig:"OPENAI_VOICE" default:"alloy"`
}

type PipelineConfig struct {
	AgentProvider     string        `envconfig:"PIPELINE_AGENT_PROVIDER" default:"gemini"`
	ImageProvider     string        `envconfig:"PIPELINE_IMAGE_PROVIDER" default:"openai"`
	NarrationProvider string        `envconfig:"PIPELINE_NARRATION_PROVIDER" default:"openai"`
	MaxInFlight       int           `envconfig:"PIPELINE_MAX_IN_FLIGHT" default:"4"`
	FailureTolerance  int           `envconfig:"PIPELINE_FAILURE_TOLERANCE" default:"0"`
	SceneMaxAttempts  int           `envconfig:"PIPELINE_SCENE_MAX_ATTEMPTS" default:"1"`
	ImageSize         string        `envconfig:"PIPELINE_IMAGE_SIZE" default:"1024x1024"`
	Voice             string        `envconfig:"PIPELINE_VOICE"`
	CallTimeout       time.Duration `envconfig:"PIPELINE_CALL_TIMEOUT" default:"2m"`
	RunTimeout        time.Duration `envconfig:"PIPELINE_RUN_TIMEOUT" default:"30m"`
	DynamicScenes     bool          `envconfig:"PIPELINE_DYNAMIC_SCENES" default:"false"`
	Quality           string        `envconfig:"PIPELINE_QUALITY" default:"balanced"`
	BackgroundMusic   string        `envconfig:"PIPELINE_BACKGROUND_MUSIC"`
	MusicVolume       float64       `envconfig:"PIPELINE_MUSIC_VOLUME" default:"0.15"`
}

type MediaConfig struct {
	FFmpegPath  string        `envconfig:"MEDIA_FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string        `envconfig:"MEDIA_FFPROBE_PATH" default:"ffprobe"`
	WorkDir     string        `envconfig:"MEDIA_WORK_DIR" default:"/tmp/lessonforge-media"`
	Timeout     time.Duration `envconfig:"MEDIA_TIMEOUT" default:"10m"`
}

type StorageConfig struct {
	Backend       string `envconfig:"STORAGE_BACKEND" default:"local"`
	LocalDir      string `envconfig:"STORAGE_LOCAL_DIR" default:"./artifacts"`
	GCSBucket     string `envconfig:"STORAGE_GCS_BUCKET"`
	PublicBaseURL string `envconfig:"STORAGE_PUBLIC_BASE_URL"`
}

type DatabaseConfig struct {
	Driver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"DATABASE_DSN" default:"lessonforge.db"`
}
