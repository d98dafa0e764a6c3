package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// noteDirCandidates are directories commonly holding study material,
// checked in order when suggesting include patterns.
var noteDirCandidates = []struct {
	Dir     string
	Include string
}{
	{Dir: "notes", Include: "notes/**/*.md"},
	{Dir: "docs", Include: "docs/**/*.md"},
	{Dir: "content", Include: "content/**/*.md"},
	{Dir: "wiki", Include: "wiki/**/*.md"},
}

// detectNotesLayout checks the current directory for well-known note layouts.
func detectNotesLayout() (name string, include string) {
	for _, cand := range noteDirCandidates {
		if info, err := os.Stat(cand.Dir); err == nil && info.IsDir() {
			return cand.Dir, cand.Include
		}
	}
	return "", "**/*.md"
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .studyforge.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to studyforge! Let's configure your workspace.")
	fmt.Println()

	// Detect note layout.
	layout, defaultInclude := detectNotesLayout()
	if layout != "" {
		fmt.Printf("Detected notes directory: %s/\n\n", layout)
	}

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "anthropic", "google", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	// 2. Quality tier.
	qualityPrompt := promptui.Select{
		Label: "Select quality tier",
		Items: []string{
			"lite   — fast & cheap (haiku / gpt-4o-mini)",
			"normal — balanced (sonnet / gpt-4o)",
			"max    — highest quality (opus / gpt-4)",
		},
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]

	preset := GetPreset(provider, quality)

	// 3. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory for indexes and caches",
		Default: ".studyforge",
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 4. Include patterns.
	includePrompt := promptui.Prompt{
		Label:   "Include patterns (comma-separated globs)",
		Default: defaultInclude,
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	include := splitAndTrim(includeStr)

	// 5. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	exclude := DefaultExcludes
	if excludeStr != "" {
		exclude = append(exclude, splitAndTrim(excludeStr)...)
	}

	// Build the config on top of the defaults.
	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = embeddingProviderFor(provider)
	cfg.EmbeddingModel = preset.EmbeddingModel
	cfg.Quality = quality
	cfg.DataDir = dataDir
	cfg.Include = include
	cfg.Exclude = exclude

	// Check for API key.
	envVar := APIKeyEnvVar(provider)
	if envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running studyforge ingest.\n", envVar)
		}
	}

	// Save to .studyforge.yml.
	configPath := ".studyforge.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. OpenAI embeddings are used for all cloud providers.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
