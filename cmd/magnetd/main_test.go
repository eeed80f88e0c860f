package main

import (
	"io"
	"testing"

	"magnetd/internal/config"
	"magnetd/internal/engine"
	"magnetd/internal/utils"
)

func TestNewEngineUnknownType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Engine.Type = "transmission"

	if _, err := newEngine(cfg, utils.NewLogger(false, io.Discard)); err == nil {
		t.Fatal("newEngine() accepted an unknown engine type")
	}
}

func TestNewEngineMockType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Engine.Type = "mock"

	eng, err := newEngine(cfg, utils.NewLogger(false, io.Discard))
	if err != nil {
		t.Fatalf("newEngine() error = %v", err)
	}
	if _, ok := eng.(*engine.MockEngine); !ok {
		t.Errorf("newEngine() = %T, want *engine.MockEngine", eng)
	}
}
