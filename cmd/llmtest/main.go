package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/synquot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/synquot/internal/config"
	"github.com/wolfman30/synquot/internal/conversation"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/pkg/logging"
)

const probeMessage = "Add Website Development, quantity 1, price 45000."

type probeResult struct {
	Model   string
	Elapsed time.Duration
	Result  llm.Result
	Err     error
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := appconfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter("warn", os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend, err := bootstrap.BuildBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build %s backend: %v\n", cfg.LLMProvider, err)
		os.Exit(1)
	}
	if backend == nil {
		fmt.Println("LLM_PROVIDER=none; nothing to probe")
		return
	}
	defer backend.Close()

	gw := llm.NewGateway(backend, bootstrap.GatewayConfig(cfg, backend), logger, nil)
	results := probeAll(ctx, gw)
	fmt.Print(report(backend.Provider, results))

	for _, r := range results {
		if r.Err == nil {
			return
		}
	}
	os.Exit(1)
}

func probeAll(ctx context.Context, gw *llm.Gateway) []probeResult {
	messages := []llm.Message{
		{Role: "system", Content: conversation.SystemPrompt},
		{Role: "user", Content: probeMessage},
	}
	var out []probeResult
	for _, model := range gw.Models() {
		start := time.Now()
		res, err := gw.Probe(ctx, model, messages)
		out = append(out, probeResult{Model: model, Elapsed: time.Since(start), Result: res, Err: err})
	}
	return out
}

func report(provider string, results []probeResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LLM probe (%s)\n", provider)
	fmt.Fprintln(&b, strings.Repeat("=", 60))
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "[%d] %s: FAILED after %v: %v\n", i+1, r.Model, r.Elapsed.Round(time.Millisecond), r.Err)
			continue
		}
		parsed := "unstructured"
		if _, ok := conversation.ParseResponse(r.Result.Text); ok {
			parsed = "valid JSON reply"
		}
		fmt.Fprintf(&b, "[%d] %s: OK in %v (%s, tokens in=%d out=%d)\n",
			i+1, r.Model, r.Elapsed.Round(time.Millisecond), parsed,
			r.Result.Usage.InputTokens, r.Result.Usage.OutputTokens)
	}
	return b.String()
}
