package service

import (
	"io"
	"strings"
	"testing"

	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/logger"
)

func registryLogger() *logger.Logger {
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard, ServiceName: "test"})
	logger.SetDefaultLogger(log)
	return log
}

func validConfigs() []config.EmbeddingConfig {
	return []config.EmbeddingConfig{
		{
			Name:       "jina-main",
			Provider:   "jina",
			Model:      "jina-embeddings-v3",
			APIKey:     "key",
			Dimensions: 1024,
		},
		{
			Name:       "local",
			Provider:   "openai-compatible",
			Model:      "nomic-embed-text",
			BaseURL:    "http://localhost:11434/v1",
			Dimensions: 768,
		},
	}
}

func TestRegistryRegistersProviders(t *testing.T) {
	r, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{
		Embeddings: validConfigs(),
		Logger:     registryLogger(),
	})
	if err != nil {
		t.Fatalf("NewEmbeddingRegistry: %v", err)
	}

	if got := r.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "jina-main" || names[1] != "local" {
		t.Errorf("Names = %v, want registration order [jina-main local]", names)
	}

	p, ok := r.GetProvider("jina-main")
	if !ok {
		t.Fatal("GetProvider(jina-main) not found")
	}
	if p.Dimensions() != 1024 {
		t.Errorf("Dimensions = %d, want 1024", p.Dimensions())
	}
	if p.Name() != ProviderJina {
		t.Errorf("Name = %q, want %q", p.Name(), ProviderJina)
	}

	cfg, ok := r.GetConfig("local")
	if !ok {
		t.Fatal("GetConfig(local) not found")
	}
	if cfg.Model != "nomic-embed-text" {
		t.Errorf("Model = %q, want nomic-embed-text", cfg.Model)
	}
	if !r.Has("local") || r.Has("nope") {
		t.Error("Has should report registered names only")
	}
}

func TestRegistrySkipsUnusableConfigs(t *testing.T) {
	cfgs := []config.EmbeddingConfig{
		{Name: "good", Provider: "jina", Model: "jina-embeddings-v3", APIKey: "key", Dimensions: 1024},
		// Fails validation: no model.
		{Name: "no-model", Provider: "jina", APIKey: "key", Dimensions: 1024},
		// Fails construction: vertex requires a base URL.
		{Name: "no-url", Provider: "vertex", Model: "textembedding-gecko", APIKey: "key", Dimensions: 768},
		// No API key and not a keyless-capable provider.
		{Name: "no-key", Provider: "jina", Model: "jina-embeddings-v3", Dimensions: 1024},
	}

	r, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{
		Embeddings: cfgs,
		Logger:     registryLogger(),
	})
	if err != nil {
		t.Fatalf("NewEmbeddingRegistry: %v", err)
	}

	if got := r.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "good" {
		t.Errorf("Names = %v, want [good]", names)
	}
}

func TestRegistryDefaultResolution(t *testing.T) {
	withFlag := validConfigs()
	withFlag[1].IsDefault = true

	tests := []struct {
		name        string
		configs     []config.EmbeddingConfig
		defaultName string
		want        string
	}{
		{"explicit overrides flag", withFlag, "jina-main", "jina-main"},
		{"flag honored", withFlag, "", "local"},
		{"first registered fallback", validConfigs(), "", "jina-main"},
		{"unknown explicit falls back", validConfigs(), "missing", "jina-main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{
				Embeddings:  tt.configs,
				DefaultName: tt.defaultName,
				Logger:      registryLogger(),
			})
			if err != nil {
				t.Fatalf("NewEmbeddingRegistry: %v", err)
			}
			if got := r.DefaultName(); got != tt.want {
				t.Errorf("DefaultName = %q, want %q", got, tt.want)
			}
			p, ok := r.GetProvider("")
			if !ok {
				t.Fatal("GetProvider(\"\") should resolve the default")
			}
			want, _ := r.GetProvider(tt.want)
			if p != want {
				t.Error("GetProvider(\"\") did not return the default provider")
			}
		})
	}
}

func TestRegistryConstructionErrors(t *testing.T) {
	log := registryLogger()

	if _, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{Embeddings: validConfigs()}); err == nil {
		t.Error("expected error without a logger")
	}
	if _, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{Logger: log}); err == nil {
		t.Error("expected error without embedding configs")
	}

	allBad := []config.EmbeddingConfig{
		{Name: "no-key", Provider: "jina", Model: "jina-embeddings-v3", Dimensions: 1024},
	}
	_, err := NewEmbeddingRegistry(&EmbeddingRegistryConfig{Embeddings: allBad, Logger: log})
	if err == nil || !strings.Contains(err.Error(), "no valid embedding configurations") {
		t.Errorf("expected no-valid-configurations error, got %v", err)
	}
}
