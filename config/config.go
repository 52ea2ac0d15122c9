package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in the per-stage provider fields.
const (
	ProviderGroq       = "groq"
	ProviderDeepgram   = "deepgram"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderElevenLabs = "elevenlabs"
	ProviderPiper      = "piper"
	ProviderLocal      = "local"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	STT      STTConfig      `yaml:"stt"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	BaseURL     string `yaml:"base_url"`
	BaseWsURL   string `yaml:"base_ws_url"`

	// Outbound-call requests per second. Pointer so an explicit 0, which
	// blocks outbound calls, is distinguishable from unset.
	CallRate *float64 `yaml:"call_rate"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type STTConfig struct {
	Provider       string `yaml:"provider"` // groq, deepgram, local
	Model          string `yaml:"model"`
	GroqAPIKey     string `yaml:"groq_api_key"`
	DeepgramAPIKey string `yaml:"deepgram_api_key"`
	WhisperHost    string `yaml:"whisper_host"` // local whisper server
	Language       string `yaml:"language"`
}

type LLMConfig struct {
	Provider     string  `yaml:"provider"` // groq, openai, ollama
	Model        string  `yaml:"model"`
	GroqAPIKey   string  `yaml:"groq_api_key"`
	OpenAIAPIKey string  `yaml:"openai_api_key"`
	OllamaHost   string  `yaml:"ollama_host"`
	OllamaModel  string  `yaml:"ollama_model"`
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`

	// Pointer so an explicit 0, deterministic sampling, is distinguishable
	// from unset.
	Temperature *float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Provider          string `yaml:"provider"` // elevenlabs, openai, piper
	Voice             string `yaml:"voice"`
	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `yaml:"elevenlabs_voice_id"`
	ElevenLabsModelID string `yaml:"elevenlabs_model_id"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	PiperHost         string `yaml:"piper_host"`
	OutputFormat      string `yaml:"output_format"` // ulaw_8000 for telephony, wav for local
}

// PipelineConfig mirrors the runtime knobs of the voice loop. Durations are
// seconds, as fractions are common (0.3s silence, 0.5s interrupt).
type PipelineConfig struct {
	AllowInterruptions      bool    `yaml:"allow_interruptions"`
	InterruptSpeechDuration float64 `yaml:"interrupt_speech_duration"`
	MinSilenceDuration      float64 `yaml:"min_silence_duration"`
	StageTimeout            float64 `yaml:"stage_timeout"`
	UseLocal                bool    `yaml:"use_local"` // skip cloud providers entirely
	RecordSegments          bool    `yaml:"record_segments"`
	RecordDir               string  `yaml:"record_dir"`
	Greeting                string  `yaml:"greeting"`

	// Short phrases spoken right after each utterance while the reply is
	// generated. Empty disables the filler.
	FillerPhrases []string `yaml:"filler_phrases"`

	// Latency targets in milliseconds, used for benchmark grading.
	TargetSTTLatencyMs   int `yaml:"target_stt_latency_ms"`
	TargetLLMLatencyMs   int `yaml:"target_llm_latency_ms"`
	TargetTTSLatencyMs   int `yaml:"target_tts_latency_ms"`
	TargetTotalLatencyMs int `yaml:"target_total_latency_ms"`
}

type LogConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	LatencyMetrics bool   `yaml:"latency_metrics"`
}

// Load reads a YAML config file, expands ${ENV} references, and applies
// defaults. A missing file is not an error; defaults plus environment
// variables are enough to run.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

// applyEnv fills credential fields from the conventional environment
// variables when the YAML left them empty.
func (c *Config) applyEnv() {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}

	setIfEmpty(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setIfEmpty(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setIfEmpty(&c.Twilio.FromNumber, "TWILIO_FROM_NUMBER")
	setIfEmpty(&c.Server.BaseURL, "BASE_URL")
	setIfEmpty(&c.Server.BaseWsURL, "BASE_WS_URL")
	setIfEmpty(&c.STT.GroqAPIKey, "GROQ_API_KEY")
	setIfEmpty(&c.STT.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	setIfEmpty(&c.LLM.GroqAPIKey, "GROQ_API_KEY")
	setIfEmpty(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.LLM.OllamaHost, "OLLAMA_HOST")
	setIfEmpty(&c.TTS.ElevenLabsAPIKey, "ELEVEN_LABS_API_KEY")
	setIfEmpty(&c.TTS.OpenAIAPIKey, "OPENAI_API_KEY")
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Server.CallRate == nil {
		c.Server.CallRate = floatPtr(1)
	}
	if c.STT.Provider == "" {
		c.STT.Provider = ProviderGroq
	}
	if c.STT.Model == "" {
		c.STT.Model = "whisper-large-v3-turbo"
	}
	if c.STT.WhisperHost == "" {
		c.STT.WhisperHost = "http://localhost:8178"
	}
	if c.STT.Language == "" {
		c.STT.Language = "en"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGroq
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama-3.3-70b-versatile"
	}
	if c.LLM.OllamaHost == "" {
		c.LLM.OllamaHost = "http://localhost:11434"
	}
	if c.LLM.OllamaModel == "" {
		c.LLM.OllamaModel = "llama3.2:3b"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 150
	}
	if c.LLM.Temperature == nil {
		c.LLM.Temperature = floatPtr(0.7)
	}
	if c.TTS.Provider == "" {
		c.TTS.Provider = ProviderElevenLabs
	}
	if c.TTS.ElevenLabsVoiceID == "" {
		c.TTS.ElevenLabsVoiceID = "JBFqnCBsd6RMkjVDRZzb"
	}
	if c.TTS.ElevenLabsModelID == "" {
		c.TTS.ElevenLabsModelID = "eleven_multilingual_v2"
	}
	if c.TTS.PiperHost == "" {
		c.TTS.PiperHost = "http://localhost:5000"
	}
	if c.TTS.OutputFormat == "" {
		c.TTS.OutputFormat = "ulaw_8000"
	}
	if c.Pipeline.InterruptSpeechDuration == 0 {
		c.Pipeline.InterruptSpeechDuration = 0.5
	}
	if c.Pipeline.MinSilenceDuration == 0 {
		c.Pipeline.MinSilenceDuration = 0.3
	}
	if c.Pipeline.StageTimeout == 0 {
		c.Pipeline.StageTimeout = 10
	}
	if c.Pipeline.RecordDir == "" {
		c.Pipeline.RecordDir = "./segments"
	}
	if c.Pipeline.TargetSTTLatencyMs == 0 {
		c.Pipeline.TargetSTTLatencyMs = 200
	}
	if c.Pipeline.TargetLLMLatencyMs == 0 {
		c.Pipeline.TargetLLMLatencyMs = 150
	}
	if c.Pipeline.TargetTTSLatencyMs == 0 {
		c.Pipeline.TargetTTSLatencyMs = 100
	}
	if c.Pipeline.TargetTotalLatencyMs == 0 {
		c.Pipeline.TargetTotalLatencyMs = 500
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func floatPtr(f float64) *float64 { return &f }

// InterruptSpeech returns the voiced duration required to treat speech during
// playback as a barge-in.
func (p PipelineConfig) InterruptSpeech() time.Duration {
	return time.Duration(p.InterruptSpeechDuration * float64(time.Second))
}

// MinSilence returns the quiet duration that closes an utterance.
func (p PipelineConfig) MinSilence() time.Duration {
	return time.Duration(p.MinSilenceDuration * float64(time.Second))
}

// Timeout returns the per-attempt deadline applied to each stage call.
func (p PipelineConfig) Timeout() time.Duration {
	return time.Duration(p.StageTimeout * float64(time.Second))
}
