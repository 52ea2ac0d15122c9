package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/albertoelopez/voice-agent/audio"
	"github.com/albertoelopez/voice-agent/bench"
	"github.com/albertoelopez/voice-agent/call"
	"github.com/albertoelopez/voice-agent/config"
	"github.com/albertoelopez/voice-agent/llm"
	"github.com/albertoelopez/voice-agent/logging"
	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/vad"
	"github.com/albertoelopez/voice-agent/workers"
)

type callRequest struct {
	To string `json:"to"`
}

type callResponse struct {
	SID     string `json:"sid,omitempty"`
	Message string `json:"message"`
}

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the YAML config file")
		benchStage  = flag.String("bench", "", "benchmark one stage (stt, llm, tts) instead of serving")
		benchN      = flag.Int("bench-n", 20, "benchmark iterations")
		benchWarmup = flag.Int("bench-warmup", 2, "benchmark warm-up iterations")
		localMode   = flag.Bool("local", false, "talk to the agent through the microphone instead of serving")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *benchStage != "" {
		if err := runBench(cfg, logger, *benchStage, *benchN, *benchWarmup); err != nil {
			logger.Fatal("benchmark failed", zap.Error(err))
		}
		return
	}

	if *localMode {
		if err := runLocal(cfg, logger); err != nil {
			logger.Fatal("local session failed", zap.Error(err))
		}
		return
	}

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	collector := metrics.NewCollector()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		logger.Info("metrics listening", zap.String("addr", cfg.Server.MetricsAddr))
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	var client *twilio.RestClient
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Twilio.AccountSID,
			Password: cfg.Twilio.AuthToken,
		})
	} else {
		logger.Warn("twilio credentials not set, outbound calls disabled")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Outbound calls are rate limited; a runaway client dialing the Twilio
	// API is an expensive bug.
	callRate := *cfg.Server.CallRate
	limiter := rate.NewLimiter(rate.Limit(callRate), callBurst(callRate))

	// POST /call kicks off an outbound call and points its TwiML at /twiml.
	app.Post("/call", func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "call rate exceeded"})
		}
		if client == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "twilio is not configured"})
		}

		var req callRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.To == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`to` field is required"})
		}

		params := &openapi.CreateCallParams{}
		params.SetTo(req.To)
		params.SetFrom(cfg.Twilio.FromNumber)
		params.SetUrl(fmt.Sprintf("%stwiml", cfg.Server.BaseURL))
		params.SetMethod("GET")

		resp, err := client.Api.CreateCall(params)
		if err != nil {
			logger.Error("creating outbound call", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create call"})
		}

		logger.Info("outbound call created", zap.String("to", req.To), zap.Stringp("sid", resp.Sid))
		return c.JSON(callResponse{SID: deref(resp.Sid), Message: "call initiated"})
	})

	// GET /twiml returns the TwiML that streams call media to /stream.
	app.Get("/twiml", func(c *fiber.Ctx) error {
		callSid := c.Query("CallSid", "")
		if callSid == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "CallSid missing"})
		}

		xml := fmt.Sprintf(`
<Response>
  <Connect>
    <Stream url="%sstream?CallSid=%s" bidirectional="true"/>
  </Connect>
</Response>`, cfg.Server.BaseWsURL, callSid)

		c.Type("xml")
		return c.SendString(xml)
	})

	app.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/stream", websocket.New(func(ws *websocket.Conn) {
		session, err := call.NewSession(ws, cfg, collector, logger)
		if err != nil {
			logger.Error("building call session", zap.Error(err))
			ws.Close()
			return
		}
		if err := session.Run(); err != nil {
			logger.Error("call session ended with error", zap.Error(err))
		}
	}))

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		_ = app.Shutdown()
	}()

	logger.Info("listening", zap.String("addr", cfg.Server.Addr))
	return app.Listen(cfg.Server.Addr)
}

// runBench times a single stage against its configured provider chain, using
// synthetic input so no call has to be in flight.
func runBench(cfg *config.Config, logger *zap.Logger, stage string, n, warmup int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var fn func(context.Context) error
	switch stage {
	case "stt":
		tr, err := call.BuildTranscriber(cfg, nil, logger)
		if err != nil {
			return err
		}
		segment := benchTone(8000, 1.0)
		fn = func(ctx context.Context) error {
			_, err := tr.Transcribe(ctx, segment)
			return err
		}

	case "llm":
		responder, err := call.BuildResponder(cfg, nil, logger)
		if err != nil {
			return err
		}
		msgs := []llm.Message{
			{Role: llm.RoleSystem, Content: "Answer in one short sentence."},
			{Role: llm.RoleUser, Content: "What time is it useful to benchmark a voice agent?"},
		}
		fn = func(ctx context.Context) error {
			_, err := responder.Generate(ctx, msgs)
			return err
		}

	case "tts":
		synth, err := call.BuildSynthesizer(cfg, nil, logger)
		if err != nil {
			return err
		}
		fn = func(ctx context.Context) error {
			_, err := synth.Synthesize(ctx, "This is a short latency benchmark sentence.")
			return err
		}

	default:
		return fmt.Errorf("unknown benchmark stage %q (want stt, llm, or tts)", stage)
	}

	result, err := bench.Run(ctx, stage, n, warmup, bench.TargetFor(cfg, stage), fn)
	if err != nil {
		return err
	}

	fmt.Print(bench.Report(result))
	if !result.Passed() {
		os.Exit(1)
	}
	return nil
}

// runLocal talks to the agent through the default microphone: gated segments
// are transcribed, answered, and the rendered replies land as audio files in
// the record directory. Requires a binary built with -tags portaudio.
func runLocal(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	const sampleRate = 8000

	transcriber, err := call.BuildTranscriber(cfg, nil, logger)
	if err != nil {
		return err
	}
	responder, err := call.BuildResponder(cfg, nil, logger)
	if err != nil {
		return err
	}
	synth, err := call.BuildSynthesizer(cfg, nil, logger)
	if err != nil {
		return err
	}

	mic := audio.NewMicrophoneSource(sampleRate, 160, logger)
	if err := mic.Start(); err != nil {
		return err
	}
	defer mic.Stop()

	// The recorder also creates the directory the rendered replies land in.
	recorder, err := audio.NewRecorder(afero.NewOsFs(), cfg.Pipeline.RecordDir, sampleRate)
	if err != nil {
		return err
	}

	frames := make(chan []int16, 32)
	go func() {
		defer close(frames)
		if err := mic.Frames(ctx, frames); err != nil && ctx.Err() == nil {
			logger.Error("microphone stopped", zap.Error(err))
		}
	}()

	detector := vad.New(vad.Config{
		SampleRate: sampleRate,
		MinSilence: cfg.Pipeline.MinSilence(),
	})

	prompt := cfg.LLM.SystemPrompt
	if prompt == "" {
		prompt = workers.DefaultSystemPrompt
	}

	tracker := metrics.NewLatencyTracker()
	history := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}
	replies := 0

	logger.Info("listening on microphone, ctrl-c to stop")
	for ev := range detector.Detect(ctx, frames) {
		if ev.Type != vad.SpeechEnd {
			continue
		}

		if cfg.Pipeline.RecordSegments {
			if _, err := recorder.Save(ev.Segment); err != nil {
				logger.Warn("saving segment failed", zap.Error(err))
			}
		}

		transcript, err := transcriber.Transcribe(ctx, ev.Segment)
		if err != nil {
			logger.Error("transcription failed", zap.Error(err))
			continue
		}
		tracker.Record("stt", transcript.Latency)
		if transcript.Text == "" {
			continue
		}
		fmt.Printf("you:   %s\n", transcript.Text)

		history = append(history, llm.Message{Role: llm.RoleUser, Content: transcript.Text})
		reply, err := responder.Generate(ctx, history)
		if err != nil {
			logger.Error("reply generation failed", zap.Error(err))
			continue
		}
		tracker.Record("llm", reply.Latency)
		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: reply.Text})
		fmt.Printf("agent: %s\n", reply.Text)

		rendered, err := synth.Synthesize(ctx, reply.Text)
		if err != nil {
			logger.Error("synthesis failed", zap.Error(err))
			continue
		}
		tracker.Record("tts", rendered.Latency)

		replies++
		path := filepath.Join(cfg.Pipeline.RecordDir, fmt.Sprintf("reply-%03d.%s", replies, extFor(rendered.Format)))
		if err := os.WriteFile(path, rendered.Audio, 0o644); err != nil {
			logger.Error("writing reply audio", zap.Error(err))
			continue
		}
		logger.Info("reply rendered", zap.String("path", path), zap.String("provider", rendered.Provider))
	}

	fmt.Print(tracker.Summary())
	return nil
}

func extFor(format string) string {
	if format == "" || strings.HasPrefix(format, "ulaw") {
		return "ulaw"
	}
	return format
}

// benchTone generates a 440 Hz sine segment, enough signal for a transcriber
// round trip without shipping a fixture file.
func benchTone(sampleRate int, seconds float64) []int16 {
	n := int(float64(sampleRate) * seconds)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return samples
}

func callBurst(r float64) int {
	if r < 1 {
		return 1
	}
	return int(r)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
