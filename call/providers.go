package call

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/albertoelopez/voice-agent/config"
	"github.com/albertoelopez/voice-agent/fallback"
	"github.com/albertoelopez/voice-agent/llm"
	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/stt"
	"github.com/albertoelopez/voice-agent/tts"
)

// telephonySampleRate is what Twilio media streams deliver.
const telephonySampleRate = 8000

// stageOptions builds the selector options for one stage: shared timeout,
// force-local switch, and the fallback counter.
func stageOptions(cfg *config.Config, stage string, collector *metrics.Collector, logger *zap.Logger) fallback.Options {
	return fallback.Options{
		Timeout:        cfg.Pipeline.Timeout(),
		ForceSecondary: cfg.Pipeline.UseLocal,
		OnFallback: func() {
			if collector != nil {
				collector.Fallback(stage)
			}
		},
		Logger: logger,
	}
}

// BuildTranscriber assembles the segment transcription stage: Groq primary,
// local whisper secondary. Without a Groq key the local model serves alone,
// the same degradation the fallback would land on.
func BuildTranscriber(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (stt.Transcriber, error) {
	local := stt.NewLocalWhisper(cfg.STT.WhisperHost, cfg.STT.Language, telephonySampleRate)

	if cfg.STT.GroqAPIKey == "" {
		logger.Info("no groq API key, transcription is local-only")
		return local, nil
	}

	groq, err := stt.NewGroqTranscriber(cfg.STT.GroqAPIKey, cfg.STT.Model, cfg.STT.Language, telephonySampleRate)
	if err != nil {
		return nil, fmt.Errorf("building groq transcriber: %w", err)
	}
	return stt.NewFallback(groq, local, stageOptions(cfg, "stt", collector, logger)), nil
}

// BuildResponder assembles the reply stage: Groq primary, Ollama secondary.
func BuildResponder(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (llm.Responder, error) {
	ollama := llm.NewOllamaResponder(cfg.LLM.OllamaHost, cfg.LLM.OllamaModel, cfg.LLM.MaxTokens)

	if cfg.LLM.Provider == config.ProviderOllama || cfg.LLM.GroqAPIKey == "" {
		if cfg.LLM.GroqAPIKey == "" {
			logger.Info("no groq API key, replies are local-only")
		}
		return ollama, nil
	}

	groq, err := llm.NewGroqResponder(cfg.LLM.GroqAPIKey, cfg.LLM.Model, cfg.LLM.MaxTokens, *cfg.LLM.Temperature)
	if err != nil {
		return nil, fmt.Errorf("building groq responder: %w", err)
	}
	return llm.NewFallback(groq, ollama, stageOptions(cfg, "llm", collector, logger)), nil
}

// BuildSynthesizer assembles the synthesis stage: ElevenLabs (or OpenAI)
// primary, Piper secondary.
func BuildSynthesizer(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (tts.Synthesizer, error) {
	piper := tts.NewPiper(cfg.TTS.PiperHost, cfg.TTS.Voice)

	var primary tts.Synthesizer
	var err error
	switch cfg.TTS.Provider {
	case config.ProviderOpenAI:
		if cfg.TTS.OpenAIAPIKey == "" {
			logger.Info("no openai API key, synthesis is local-only")
			return piper, nil
		}
		primary, err = tts.NewOpenAITTS(cfg.TTS.OpenAIAPIKey, "", cfg.TTS.Voice)
	case config.ProviderPiper:
		return piper, nil
	default:
		if cfg.TTS.ElevenLabsAPIKey == "" {
			logger.Info("no elevenlabs API key, synthesis is local-only")
			return piper, nil
		}
		primary, err = tts.NewElevenLabs(cfg.TTS.ElevenLabsAPIKey, cfg.TTS.ElevenLabsVoiceID,
			cfg.TTS.ElevenLabsModelID, cfg.TTS.OutputFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("building synthesizer: %w", err)
	}
	return tts.NewFallback(primary, piper, stageOptions(cfg, "tts", collector, logger)), nil
}
