package main

import (
	"context"
	"testing"

	"nutriscan/config"
)

func TestCheckBundledArtifacts(t *testing.T) {
	cfg, err := config.Load("../../config.yaml", "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := check(context.Background(), cfg); err != nil {
		t.Fatalf("bundled artifacts failed: %v", err)
	}
}

func TestCheckMissingModel(t *testing.T) {
	cfg, err := config.Load("../../config.yaml", "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Artifacts.Model = "../../artifacts/missing.json"
	if err := check(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for a missing model")
	}
}
