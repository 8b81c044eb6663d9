package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: silencetest <audio_file_or_url>")
	}

	source := os.Args[1]
	fmt.Printf("Analyzing: %s\n\n", source)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	analyzer := analysis.New("", slog.New(slog.NewTextHandler(os.Stderr, nil)))
	silences, err := analyzer.DetectSilences(ctx, source)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}

	fmt.Printf("Silences: %d (floor %.0f dB, min %.1f sec)\n",
		len(silences), analysis.NoiseFloorDB, analysis.MinSilenceSeconds)
	for i, s := range silences {
		fmt.Printf("  [%d] %.2f - %.2f (%.2f sec)\n", i, s.Start, s.End, s.Duration)
	}
}
