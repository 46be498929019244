package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"nutriscan/config"
	"nutriscan/ml"
	"nutriscan/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	transformPath := flag.String("transform", "", "transform artifact, overrides config")
	modelPath := flag.String("model", "", "model artifact, overrides config")
	timeout := flag.Duration("timeout", 30*time.Second, "artifact fetch timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath, "")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *transformPath != "" {
		cfg.Artifacts.Transform = *transformPath
	}
	if *modelPath != "" {
		cfg.Artifacts.Model = *modelPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := check(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

func check(ctx context.Context, cfg *config.Config) error {
	src, err := ml.SourceFor(ctx, cfg.Artifacts.S3Region, cfg.Artifacts.Transform, cfg.Artifacts.Model)
	if err != nil {
		return err
	}
	transform, err := ml.LoadTransform(ctx, src, cfg.Artifacts.Transform)
	if err != nil {
		return err
	}
	model, err := ml.LoadModel(ctx, src, cfg.Artifacts.Model)
	if err != nil {
		return err
	}

	fmt.Printf("transform %-18s kind=%s width=%d\n", cfg.Artifacts.Transform, transform.Kind(), transform.InputWidth())
	fmt.Printf("model     %-18s kind=%s width=%d scored=%t\n", cfg.Artifacts.Model, model.Kind(), model.InputWidth(), model.HasScore())

	p, err := pipeline.New(transform, model, pipeline.WithNegativePolicy(cfg.NegativePolicy()))
	if err != nil {
		return err
	}
	if err := p.Check(); err != nil {
		return err
	}

	sample := pipeline.NewNutrientProfile(120, 8, 15, 2, 5, 3, 90, 0, 150)
	result, err := p.Classify(sample)
	if err != nil {
		return fmt.Errorf("classify sample: %w", err)
	}

	out := map[string]interface{}{
		"label":      result.Label,
		"prediction": result.Prediction,
	}
	if result.Scored {
		out["raw_score"] = result.Score
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
