package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "") // registers the restore
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	unsetEnv(t, "AGENT_PROVIDER", "ROLES", "DISCUSSION_ROUNDS", "AGENT_RETRIES")

	cfg := loadConfig(filepath.Join(t.TempDir(), "none.json"), "")

	if cfg.AgentProvider != "random" || cfg.AgentRetries != 3 || cfg.DiscussionRounds != defaultDiscussionRounds {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	counts, err := parseRoleCounts(cfg.Roles)
	if err != nil || counts.validate() != nil {
		t.Errorf("Default roles %q should be valid: %v", cfg.Roles, err)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	unsetEnv(t, "AGENT_MODEL", "AGENT_PROVIDER", "SEED")
	t.Setenv("AGENT_TIMEOUT", "5s")
	t.Setenv("DISCUSSION_ROUNDS", "4")
	t.Setenv("ROLES", "villager=2,werewolf=1")

	envPath := writeFile(t, ".env", "AGENT_MODEL=llama3\nROLES=villager=9\nSEED=11\n")
	configPath := writeFile(t, "config.json", `{"seed": 99, "autoplay_interval": "250ms", "agent_rps": 1.5}`)

	cfg := loadConfig(configPath, envPath)

	if cfg.AgentModel != "llama3" {
		t.Errorf(".env should fill unset vars, got model %q", cfg.AgentModel)
	}
	if cfg.Roles != "villager=2,werewolf=1" {
		t.Errorf(".env must not override the process environment, got roles %q", cfg.Roles)
	}
	if cfg.AgentTimeout != 5*time.Second || cfg.DiscussionRounds != 4 {
		t.Errorf("Env vars not applied: timeout %s rounds %d", cfg.AgentTimeout, cfg.DiscussionRounds)
	}
	if cfg.Seed != 99 {
		t.Errorf("JSON file should override env, got seed %d", cfg.Seed)
	}
	if cfg.AutoplayInterval != 250*time.Millisecond || cfg.AgentRPS != 1.5 {
		t.Errorf("JSON overlay not applied: interval %s rps %v", cfg.AutoplayInterval, cfg.AgentRPS)
	}
	if cfg.AgentProvider != "random" {
		t.Errorf("Fields absent everywhere keep their default, got %q", cfg.AgentProvider)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fv := registerFlags(fs)
	if err := fs.Parse([]string{"-roles", "villager=5,werewolf=2", "-agent-retries", "0", "-console"}); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.AgentModel = "from-env"
	fv.applyTo(fs, &cfg)

	if cfg.Roles != "villager=5,werewolf=2" || cfg.AgentRetries != 0 || !cfg.Console {
		t.Errorf("Explicit flags should win: %+v", cfg)
	}
	if cfg.AgentModel != "from-env" {
		t.Errorf("Unset flags must not clobber config, got model %q", cfg.AgentModel)
	}
}
