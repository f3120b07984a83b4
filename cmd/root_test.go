package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/beatdetect/internal/config"
	"github.com/ColonelBlimp/beatdetect/internal/source"
)

// setupTestConfig isolates viper and writes config into the user config dir
func setupTestConfig(t *testing.T, content string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	configDir := filepath.Join(tmpDir, ".config", "beatdetect")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlag restores a persistent flag after a test changed it
func resetFlag(t *testing.T, name string) {
	t.Helper()
	flag := rootCmd.PersistentFlags().Lookup(name)
	t.Cleanup(func() {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	})
}

func writeSilentWAV(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	rec := source.NewRecorder(f, 44100, 2)
	if err := rec.Write(make([]float32, 2*frames)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close wav: %v", err)
	}
	return path
}

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name         string
		shorthand    string
		defaultValue string
	}{
		{"device", "d", "-1"},
		{"mode", "m", "wideband"},
		{"window", "W", "none"},
		{"time-size", "t", "1024"},
		{"debug", "D", "false"},
		{"log-format", "", "text"},
		{"output", "o", "text"},
		{"all", "a", "false"},
		{"spectrum", "", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.name)
			if flag == nil {
				t.Fatalf("flag %q not found", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.defaultValue {
				t.Errorf("flag %q default = %q, want %q", tt.name, flag.DefValue, tt.defaultValue)
			}
			if flag.Usage == "" {
				t.Errorf("flag %q has no description", tt.name)
			}
		})
	}
}

func TestRootCmd_Properties(t *testing.T) {
	if rootCmd.Use != "beatdetect" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "beatdetect")
	}
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short is empty")
	}
	if rootCmd.Long == "" {
		t.Error("rootCmd.Long is empty")
	}
	if rootCmd.RunE == nil {
		t.Error("rootCmd should listen without a subcommand")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	for _, name := range []string{"listen", "analyze", "devices"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	if listenCmd.Flags().Lookup("record") == nil {
		t.Error("listen should have a --record flag")
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)

	output, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("Execute() with --help error = %v", err)
	}
	for _, want := range []string{"beatdetect", "--device", "--mode", "analyze"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

func TestInitConfig(t *testing.T) {
	setupTestConfig(t, "time_size: 2048\nlog_level: warn\n")

	// Should not exit
	initConfig()

	if viper.GetInt("time_size") != 2048 {
		t.Errorf("viper.GetInt(time_size) = %d, want 2048", viper.GetInt("time_size"))
	}
	if viper.GetString("detect_mode") != "wideband" {
		t.Errorf("detect_mode = %q, want default wideband", viper.GetString("detect_mode"))
	}
}

func TestAnalyzeCmd_Silence(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)
	path := writeSilentWAV(t, 4096)
	resetFlag(t, "all")

	output, err := execute(t, "analyze", path, "--all")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), output)
	}
	if strings.Contains(output, "BEAT") {
		t.Errorf("silence should not produce beats:\n%s", output)
	}
}

func TestAnalyzeCmd_FlagsOverrideConfig(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)
	path := writeSilentWAV(t, 1024)
	for _, name := range []string{"mode", "output", "all"} {
		resetFlag(t, name)
	}

	output, err := execute(t, "analyze", path, "--mode", "perband", "-o", "json", "-a")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &event); err != nil {
		t.Fatalf("invalid json %q: %v", output, err)
	}
	if event["mode"] != "perband" {
		t.Errorf("mode = %v, want perband from --mode", event["mode"])
	}
}

func TestAnalyzeCmd_RequiresFile(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)

	if _, err := execute(t, "analyze"); err == nil {
		t.Error("analyze without a file should fail")
	}
}

func TestAnalyzeCmd_InvalidConfig(t *testing.T) {
	// time_size must be a power of 2
	setupTestConfig(t, "time_size: 1000\n")
	path := writeSilentWAV(t, 1024)

	_, err := execute(t, "analyze", path)
	if err == nil {
		t.Fatal("expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "config") {
		t.Errorf("expected config error, got: %v", err)
	}
}

func TestAnalyzeCmd_UnknownOutput(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)
	path := writeSilentWAV(t, 1024)
	resetFlag(t, "output")

	if _, err := execute(t, "analyze", path, "--output", "xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestDevicesCmd(t *testing.T) {
	setupTestConfig(t, config.DefaultConfig)

	// without audio hardware the backend may fail to initialize
	output, err := execute(t, "devices")
	if err != nil {
		if !strings.Contains(err.Error(), "audio") {
			t.Errorf("unexpected error type: %v", err)
		}
		return
	}
	if output == "" {
		t.Error("devices printed nothing")
	}
}
