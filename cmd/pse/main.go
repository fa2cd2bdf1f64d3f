// Command pse is a demo CLI for the structured-acceptance engine: it loads a
// schema from a YAML config, wires up a tokenizer and any configured grammar
// branches, then drives a scripted mock token-generation loop against the
// compiled engine the same way a real model-serving loop would — one
// ProcessLogits/Sample/ConsumeTokens cycle per token — and prints the final
// output once the loop ends.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/kestrelsoft/pse/internal/audit"
	"github.com/kestrelsoft/pse/internal/config"
	"github.com/kestrelsoft/pse/internal/health"
	"github.com/kestrelsoft/pse/internal/observe"
	"github.com/kestrelsoft/pse/internal/resilience"
	"github.com/kestrelsoft/pse/pkg/engine"
	"github.com/kestrelsoft/pse/pkg/grammar"
	"github.com/kestrelsoft/pse/pkg/vocab"
	vocabmock "github.com/kestrelsoft/pse/pkg/vocab/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/example.yaml", "path to the YAML configuration file")
	demoText := flag.String("text", `{"name":"Ada","age":37}`, "the JSON value the mock token loop will stream through the engine")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pse: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pse: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "pse"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to build metrics", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	tokenizer, err := reg.CreateTokenizer(cfg.Engine.Vocabulary.Tokenizer)
	if err != nil {
		slog.Error("failed to build tokenizer", "err", err)
		return 1
	}

	var opts []engine.Option
	if d := cfg.Engine.Delimiters; d != nil {
		opts = append(opts, engine.WithDelimiters(d.Open, d.Close))
	}
	opts = append(opts, engine.WithBufferLength(cfg.Engine.BufferLength))
	opts = append(opts, engine.WithMultiTokenSampling(cfg.Engine.MultiTokenSampling))
	opts = append(opts, engine.WithObserver(metrics))
	for _, g := range grammarOptions(cfg, reg) {
		opts = append(opts, g)
	}

	e := engine.New(tokenizer, opts...)

	schemaSrc, err := loadSchemaSource(cfg.Engine.Schema)
	if err != nil {
		slog.Error("failed to load schema", "err", err)
		return 1
	}
	if err := e.Configure(ctx, schemaSrc); err != nil {
		slog.Error("failed to compile schema", "err", err)
		return 1
	}

	printStartupSummary(cfg, *configPath)

	var auditStore audit.Store
	if cfg.Audit.PostgresDSN != "" {
		pgStore, err := audit.NewPostgresStore(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			slog.Error("failed to open audit store — continuing without audit logging", "err", err)
		} else {
			defer pgStore.Close()
			auditStore = pgStore
		}
	}

	srv := newHealthServer(cfg.Server.ListenAddr)
	serveErr := make(chan error, 1)
	if srv != nil {
		go func() {
			slog.Info("health/metrics server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				return
			}
			serveErr <- nil
		}()
	}

	if err := runDemoLoop(ctx, e, tokenizer, *demoText, auditStore); err != nil {
		slog.Error("demo loop failed", "err", err)
		return 1
	}

	if srv == nil {
		return 0
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("health server error", "err", err)
			return 1
		}
		return 0
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Demo generation loop ────────────────────────────────────────────────────

// runDemoLoop encodes text with tok (standing in for a real model's sampled
// output) and feeds it through e one token at a time: ProcessLogits masks the
// vocabulary down to what the live steppers can still accept, a trivial
// sampler picks the highest-scoring surviving id (the "intended" id, scored
// above everything else), and Sample/ConsumeTokens commit it — exactly the
// cycle a real inference server would run around its own logits.
func runDemoLoop(ctx context.Context, e *engine.Engine, tok vocab.Tokenizer, text string, auditStore audit.Store) error {
	v := vocab.NewVocabulary(tok)
	ids := tok.Encode(text, false)

	slog.Info("starting mock generation", "target", text, "tokens", len(ids))

	startedAt := time.Now()
	tokensConsumed, tokensHealed := 0, 0

	for i, want := range ids {
		scores := make(map[int32]float64, v.Len())
		for id := int32(0); id < int32(v.Len()); id++ {
			if id == want {
				scores[id] = 0
			} else {
				scores[id] = -10
			}
		}

		masked, err := e.ProcessLogits(ctx, scores)
		if err != nil {
			return fmt.Errorf("process logits at step %d: %w", i, err)
		}

		sampler := func(s map[int32]float64) int32 {
			var best int32
			bestScore := vocab.NegInf
			for id, score := range s {
				if score > bestScore {
					best, bestScore = id, score
				}
			}
			return best
		}

		chosen, err := e.Sample(ctx, masked, sampler)
		if err != nil {
			return fmt.Errorf("sample at step %d: %w", i, err)
		}
		if len(chosen) > 1 {
			tokensHealed++
		}
		tokensConsumed += len(chosen)
		if err := e.ConsumeTokens(ctx, chosen); err != nil {
			return fmt.Errorf("consume tokens at step %d: %w", i, err)
		}

		word, _ := v.Word(want)
		slog.Debug("consumed token", "step", i, "text", word, "accept_state", e.HasReachedAcceptState())
	}

	out, err := e.Output()
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}

	fmt.Println("── generation complete ──")
	if out.Buffer != "" {
		fmt.Printf("scratchpad: %q\n", out.Buffer)
	}
	fmt.Printf("value:      %#v\n", out.Value)
	if labeled := e.GetLabeledOutput(); labeled != nil {
		fmt.Printf("labeled:    %v\n", labeled)
	}
	fmt.Printf("accepted:   %v\n", e.HasReachedAcceptState())

	if auditStore != nil {
		finishedAt := time.Now()
		outputText := ""
		if s, ok := out.Value.(string); ok {
			outputText = s
		} else if out.Value != nil {
			if b, err := json.Marshal(out.Value); err == nil {
				outputText = string(b)
			}
		}
		sess := audit.Session{
			ID:             fmt.Sprintf("demo-%d", startedAt.UnixNano()),
			Accepted:       e.HasReachedAcceptState(),
			Output:         outputText,
			TokensConsumed: tokensConsumed,
			TokensHealed:   tokensHealed,
			StartedAt:      startedAt,
			FinishedAt:     finishedAt,
			Duration:       finishedAt.Sub(startedAt),
		}
		if err := auditStore.RecordSession(ctx, sess); err != nil {
			slog.Warn("failed to record audit session", "err", err)
		}
	}
	return nil
}

// ── Backend wiring ──────────────────────────────────────────────────────────

func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterTokenizer("mock", func(entry config.ProviderEntry) (vocab.Tokenizer, error) {
		extra := extraTokens(entry)
		return vocabmock.New(extra...), nil
	})

	reg.RegisterGrammar("python", func(entry config.ProviderEntry) (grammar.Validator, error) {
		primary := grammar.NewBreakingValidator("python", grammar.NewPythonValidator(entry.Path), resilience.CircuitBreakerConfig{})
		fv := grammar.NewFallbackValidator("python-primary", primary, resilience.FallbackConfig{})
		if alt, ok := entry.Options["fallback_interpreter"].(string); ok && alt != "" {
			fallback := grammar.NewBreakingValidator("python-fallback", grammar.NewPythonValidator(alt), resilience.CircuitBreakerConfig{})
			fv.AddFallback("python-fallback", fallback)
		}
		return fv, nil
	})
	reg.RegisterGrammar("bash", func(entry config.ProviderEntry) (grammar.Validator, error) {
		primary := grammar.NewBreakingValidator("bash", grammar.NewBashValidator(entry.Path), resilience.CircuitBreakerConfig{})
		fv := grammar.NewFallbackValidator("bash-primary", primary, resilience.FallbackConfig{})
		if alt, ok := entry.Options["fallback_interpreter"].(string); ok && alt != "" {
			fallback := grammar.NewBreakingValidator("bash-fallback", grammar.NewBashValidator(alt), resilience.CircuitBreakerConfig{})
			fv.AddFallback("bash-fallback", fallback)
		}
		return fv, nil
	})
}

// extraTokens reads a list of compound "surface string" tokens out of a
// tokenizer [config.ProviderEntry]'s Options, letting a config demonstrate
// token healing without recompiling.
func extraTokens(entry config.ProviderEntry) []string {
	raw, ok := entry.Options["extra"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func grammarOptions(cfg *config.Config, reg *config.Registry) []engine.Option {
	var opts []engine.Option
	if cfg.Engine.Grammars.Python {
		v, err := reg.CreateGrammar(config.ProviderEntry{Name: "python"})
		if err != nil {
			slog.Warn("python grammar not available — skipping", "err", err)
		} else {
			opts = append(opts, engine.WithGrammar("python", v, "```python\n", "```"))
		}
	}
	if cfg.Engine.Grammars.Bash {
		v, err := reg.CreateGrammar(config.ProviderEntry{Name: "bash"})
		if err != nil {
			slog.Warn("bash grammar not available — skipping", "err", err)
		} else {
			opts = append(opts, engine.WithGrammar("bash", v, "```bash\n", "```"))
		}
	}
	return opts
}

func loadSchemaSource(s config.SchemaSource) (any, error) {
	if s.Inline != "" {
		return s.Inline, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %q: %w", s.Path, err)
	}
	return string(data), nil
}

// ── HTTP ─────────────────────────────────────────────────────────────────────

func newHealthServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	h := health.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/readyz", h.Readyz)
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, configPath string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        pse — startup summary          ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  config            : %-16s ║\n", trunc(configPath, 16))
	fmt.Printf("║  tokenizer          : %-15s ║\n", trunc(cfg.Engine.Vocabulary.Tokenizer.Name, 15))
	fmt.Printf("║  multi_token_sample : %-15v ║\n", cfg.Engine.MultiTokenSampling)
	fmt.Printf("║  python grammar     : %-15v ║\n", cfg.Engine.Grammars.Python)
	fmt.Printf("║  bash grammar       : %-15v ║\n", cfg.Engine.Grammars.Bash)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  listen addr        : %-15s ║\n", trunc(cfg.Server.ListenAddr, 15))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
