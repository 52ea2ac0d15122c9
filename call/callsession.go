// Package call runs one live conversation: inbound Twilio media frames are
// gated by the activity detector, transcribed, answered, synthesized, and
// played back, with barge-in cancelling playback mid-utterance.
package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/albertoelopez/voice-agent/audio"
	"github.com/albertoelopez/voice-agent/config"
	"github.com/albertoelopez/voice-agent/metrics"
	"github.com/albertoelopez/voice-agent/output"
	"github.com/albertoelopez/voice-agent/pipeline"
	"github.com/albertoelopez/voice-agent/stt"
	"github.com/albertoelopez/voice-agent/vad"
	"github.com/albertoelopez/voice-agent/workers"
	"github.com/spf13/afero"
)

// twilioEvent is the envelope Twilio sends on the media stream.
type twilioEvent struct {
	Event string `json:"event"` // "start", "media", "mark", "stop"
	Media struct {
		Payload string `json:"payload"` // base64 mu-law audio
	} `json:"media"`
	Start struct {
		CallSid   string `json:"callSid"`
		StreamSid string `json:"streamSid"`
	} `json:"start"`
	Mark struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// Session owns every channel and worker of one call.
type Session struct {
	id        string
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector
	tracker   *metrics.LatencyTracker

	ws        *websocket.Conn
	streamSid string

	state    *pipeline.StateMachine
	detector *vad.Detector
	recorder *audio.Recorder

	// Streaming STT (Deepgram) or segment STT (fallback chain); exactly one
	// is active, chosen by config.
	deepgram    *stt.DeepgramStream
	transcriber stt.Transcriber

	agent  *workers.AgentWorker
	synth  *workers.SynthesisWorker
	gate   *workers.TranscriptionWorker
	filler *workers.FillerWorker
	out    *output.TwilioOutput

	audioCh      chan pipeline.AudioChunk
	transcriptCh chan string
	sentenceCh   chan string
	chunkCh      chan string

	// intake is where final transcripts enter the pipeline: the filler
	// worker's input when fillers are configured, the agent's otherwise.
	intake chan string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession builds the full worker graph for one WebSocket connection.
func NewSession(ws *websocket.Conn, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*Session, error) {
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:           id,
		cfg:          cfg,
		logger:       logger,
		collector:    collector,
		tracker:      metrics.NewLatencyTracker(),
		ws:           ws,
		audioCh:      make(chan pipeline.AudioChunk, 32),
		transcriptCh: make(chan string, 4),
		sentenceCh:   make(chan string, 16),
		chunkCh:      make(chan string, 64),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.state = pipeline.NewStateMachine(s.onBargeIn)

	s.detector = vad.New(vad.Config{
		SampleRate: telephonySampleRate,
		MinSpeech:  cfg.Pipeline.InterruptSpeech(),
		MinSilence: cfg.Pipeline.MinSilence(),
	})

	if cfg.Pipeline.RecordSegments {
		rec, err := audio.NewRecorder(afero.NewOsFs(), cfg.Pipeline.RecordDir, telephonySampleRate)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("creating segment recorder: %w", err)
		}
		s.recorder = rec
	}

	s.intake = s.transcriptCh
	if phrases := cfg.Pipeline.FillerPhrases; len(phrases) > 0 {
		fillerCh := make(chan string, 4)
		s.filler = workers.NewFillerWorker(phrases, fillerCh, s.transcriptCh, s.sentenceCh, logger)
		s.intake = fillerCh
	}

	if cfg.STT.Provider == config.ProviderDeepgram {
		dg, err := stt.NewDeepgramStream(cfg.STT.DeepgramAPIKey, "", logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("connecting streaming transcriber: %w", err)
		}
		s.deepgram = dg
		s.gate = workers.NewTranscriptionWorker(dg.Results(), s.intake, logger)
	} else {
		tr, err := BuildTranscriber(cfg, collector, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		s.transcriber = tr
	}

	responder, err := BuildResponder(cfg, collector, logger)
	if err != nil {
		cancel()
		s.closeDeepgram()
		return nil, err
	}
	synthesizer, err := BuildSynthesizer(cfg, collector, logger)
	if err != nil {
		cancel()
		s.closeDeepgram()
		return nil, err
	}

	s.agent = workers.NewAgentWorker(responder, cfg.LLM.SystemPrompt, s.transcriptCh, s.sentenceCh, s.state, s.tracker, logger)
	s.synth = workers.NewSynthesisWorker(synthesizer, s.sentenceCh, s.chunkCh, s.state, s.tracker, logger)

	return s, nil
}

// Run drives the session until the stream stops or the connection drops.
func (s *Session) Run() error {
	defer s.cleanup()

	s.collector.SessionStarted()
	defer s.collector.SessionEnded()

	s.agent.Start()
	s.synth.Start()
	if s.filler != nil {
		s.filler.Start()
	}
	if s.gate != nil {
		s.gate.Start()
	}

	g, ctx := errgroup.WithContext(s.ctx)
	if s.deepgram != nil {
		g.Go(func() error {
			s.deepgram.Run(ctx, s.audioCh)
			return nil
		})
	}
	g.Go(func() error {
		return s.readLoop()
	})

	err := g.Wait()
	if err != nil && s.ctx.Err() == nil {
		return err
	}
	return nil
}

func (s *Session) readLoop() error {
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("stream closed", zap.Error(err))
				return nil
			}
			return fmt.Errorf("reading stream: %w", err)
		}

		var ev twilioEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn("unparseable stream event", zap.Error(err))
			continue
		}

		switch ev.Event {
		case "start":
			if err := s.begin(ev.Start.StreamSid); err != nil {
				return err
			}
			s.logger.Info("stream started",
				zap.String("call_sid", ev.Start.CallSid),
				zap.String("stream_sid", ev.Start.StreamSid))

		case "media":
			frame, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				s.logger.Warn("bad media payload", zap.Error(err))
				continue
			}
			s.handleFrame(frame)

		case "mark":
			// Twilio has finished playing everything up to our mark.
			s.state.SetIf(pipeline.StateSpeaking, pipeline.StateListening)

		case "stop":
			s.logger.Info("stream stopped")
			s.cancel()
			return nil

		default:
			s.logger.Debug("unknown stream event", zap.String("event", ev.Event))
		}
	}
}

// begin finishes wiring once the stream SID is known.
func (s *Session) begin(streamSid string) error {
	s.streamSid = streamSid

	out, err := output.NewTwilioOutput(streamSid, s.ws, s.chunkCh, s.logger)
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}
	s.out = out
	s.out.Start()

	s.state.Set(pipeline.StateListening)

	if greeting := s.cfg.Pipeline.Greeting; greeting != "" {
		s.agent.Say(greeting)
	}
	return nil
}

// handleFrame fans one mu-law frame out to the streaming transcriber and the
// activity detector.
func (s *Session) handleFrame(frame []byte) {
	if s.deepgram != nil {
		select {
		case s.audioCh <- frame:
		default:
			s.logger.Debug("transcriber backlogged, dropping frame")
		}
	}

	pcm := audio.DecodeMulaw(frame)
	ev, fired := s.detector.ProcessFrame(pcm)
	if !fired {
		return
	}

	switch ev.Type {
	case vad.SpeechStart:
		if s.cfg.Pipeline.AllowInterruptions {
			if s.state.BargeIn() {
				s.logger.Info("barge-in detected")
			}
		}

	case vad.SpeechEnd:
		if s.recorder != nil {
			if path, err := s.recorder.Save(ev.Segment); err != nil {
				s.logger.Warn("saving segment failed", zap.Error(err))
			} else {
				s.logger.Debug("segment saved", zap.String("path", path))
			}
		}
		if s.transcriber != nil {
			go s.transcribeSegment(ev.Segment)
		}
	}
}

// onBargeIn runs under the state-machine lock: stop generating, stop
// rendering, drop queued audio, and tell Twilio to flush its buffer.
func (s *Session) onBargeIn() {
	s.collector.BargeIn()
	s.agent.CancelCurrent()
	s.synth.CancelCurrent()
	s.drainChunks()
	if s.out != nil {
		s.out.Clear()
	}
}

// drainChunks empties audio already handed off but not yet written.
func (s *Session) drainChunks() {
	for {
		select {
		case <-s.chunkCh:
		default:
			return
		}
	}
}

func (s *Session) transcribeSegment(segment []int16) {
	result, err := s.transcriber.Transcribe(s.ctx, segment)
	if err != nil {
		s.collector.StageError("stt")
		s.logger.Error("transcription failed", zap.Error(err))
		return
	}

	s.tracker.Record("stt", result.Latency)
	s.collector.ObserveStage("stt", result.Provider, result.Latency)
	s.logger.Info("segment transcribed",
		zap.String("text", result.Text),
		zap.String("provider", result.Provider),
		zap.Duration("latency", result.Latency))

	if result.Text == "" {
		return
	}
	select {
	case s.intake <- result.Text:
	case <-s.ctx.Done():
	}
}

// cleanup releases everything the session owns. Safe to call once from Run.
func (s *Session) cleanup() {
	s.cancel()

	if s.gate != nil {
		s.gate.Stop()
	}
	if s.filler != nil {
		s.filler.Stop()
	}
	s.agent.Stop()
	s.synth.Stop()
	if s.out != nil {
		s.out.Stop()
	}
	s.closeDeepgram()
	s.ws.Close()

	if s.cfg.Log.LatencyMetrics {
		s.logger.Info("session latency summary", zap.String("summary", "\n"+s.tracker.Summary()))
	}
}

func (s *Session) closeDeepgram() {
	if s.deepgram != nil {
		if err := s.deepgram.Close(); err != nil {
			s.logger.Debug("closing streaming transcriber", zap.Error(err))
		}
		s.deepgram = nil
	}
}

// Tracker exposes the session's latency tracker.
func (s *Session) Tracker() *metrics.LatencyTracker { return s.tracker }
