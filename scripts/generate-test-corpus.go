//go:build ignore

// Generates a synthetic markdown corpus for chunker and retrieval benchmarks.
// Usage: go run scripts/generate-test-corpus.go -files 500 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 500, "Number of markdown files to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"authentication", "rate limiting", "pagination", "webhooks", "retries",
	"caching", "deployment", "observability", "migrations", "configuration",
}

var verbs = []string{
	"configure", "enable", "disable", "tune", "debug", "monitor", "rotate",
}

var docTemplate = `# %s guide

This page explains how to %s %s for your project.

## Overview

The %s subsystem handles %s across all environments. Requests that exceed
the configured limits are rejected with a structured error carrying a
suggestion for the caller.

## Configuration

Set the following keys in your workspace file:

    %s:
      enabled: true
      limit: %d

## Troubleshooting

When %s misbehaves, check the server logs first. Common causes include
stale credentials, clock skew, and exhausted quotas. Restarting the
process clears in-memory state but not persisted counters.
`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		verb := verbs[rng.Intn(len(verbs))]
		title := strings.ToUpper(topic[:1]) + topic[1:]
		body := fmt.Sprintf(docTemplate,
			title, verb, topic, topic, topic,
			strings.ReplaceAll(topic, " ", "_"), 10+rng.Intn(990), topic)

		name := fmt.Sprintf("%s-%04d.md", strings.ReplaceAll(topic, " ", "-"), i)
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(body), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
			os.Exit(1)
		}
	}
	fmt.Printf("wrote %d files to %s\n", *numFiles, *outputDir)
}
