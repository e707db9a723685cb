// Command analyze runs one or more audio captures through the analysis
// backend from the terminal, mirroring what the mobile client does:
// resolve the backend, upload, normalize, keep local history.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/respiralab/breathe-easy/internal/client"
	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/history"
)

func main() {
	_ = godotenv.Load()

	var (
		env       = flag.String("env", "production", "backend environment: emulator, device, production")
		task      = flag.String("task", "breath", "task type: breath, speech, monitoring")
		endpoints = flag.String("endpoints", "", "comma-separated fallback endpoint URLs (optional)")
		retry     = flag.Bool("retry", false, "retry once on connection timeout")
		timeout   = flag.Duration("timeout", 45*time.Second, "per-request timeout")
	)
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyze [flags] <audio.wav> [more.wav ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	resolver := client.NewResolver(client.Environment(*env), client.ResolverConfig{})

	policy := client.RetryNone
	if *retry {
		policy = client.RetryOnceOnTimeout
	}
	c := client.New(resolver, client.Options{Timeout: *timeout, Retry: policy})

	ctx := context.Background()
	if base, err := resolver.ValidatedBaseURL(ctx); err != nil {
		log.Printf("warning: %v (continuing anyway)", err)
	} else {
		log.Printf("backend healthy at %s", base)
	}

	store := history.New(nil, nil)

	for _, path := range files {
		res, err := run(ctx, c, path, domain.TaskType(*task), *endpoints)
		if err != nil {
			log.Fatalf("analyze %s: %v", path, err)
		}

		store.Append(domain.NewEntry("cli", domain.TaskType(*task), res, time.Now()))
		printResult(path, res)
	}

	if len(files) > 1 {
		printSummary(history.Summarize(store.Local()))
	}
}

func run(ctx context.Context, c *client.Client, path string, task domain.TaskType, endpoints string) (domain.AnalysisResult, error) {
	if endpoints != "" {
		return c.AnalyzeFallback(ctx, path, task, strings.Split(endpoints, ","))
	}
	return c.Analyze(ctx, path, task)
}

func printResult(path string, res domain.AnalysisResult) {
	fmt.Printf("\n== %s ==\n", path)
	if res.HasError() {
		fmt.Printf("  error: %s\n", res.Error)
		return
	}
	fmt.Printf("  label:      %s (%.1f%%)\n", res.Label, res.Confidence*100)
	if res.TextSummary != "" {
		fmt.Printf("  summary:    %s\n", res.TextSummary)
	}
	if res.Transcription != "" {
		fmt.Printf("  transcript: %s\n", res.Transcription)
	}
	if len(res.Predictions) > 0 {
		b, _ := json.Marshal(res.Predictions)
		fmt.Printf("  predictions: %s\n", b)
	}
}

func printSummary(sum history.Summary) {
	fmt.Printf("\n== session summary ==\n")
	fmt.Printf("  analyses:        %d\n", sum.Total)
	fmt.Printf("  most common:     %s\n", sum.MostCommon)
	fmt.Printf("  avg confidence:  %.1f%%\n", sum.AvgConfidence*100)
	fmt.Printf("  trend:           %s\n", sum.Trend)
}
