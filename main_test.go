package main

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestMain_Help runs main in a subprocess since Execute exits on error
func TestMain_Help(t *testing.T) {
	if os.Getenv("BEATDETECT_RUN_MAIN") == "1" {
		os.Args = []string{"beatdetect", "--help"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMain_Help")
	cmd.Env = append(os.Environ(),
		"BEATDETECT_RUN_MAIN=1",
		"HOME="+t.TempDir(),
		"XDG_CONFIG_HOME=",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("main exited with %v:\n%s", err, output)
	}
	if !strings.Contains(string(output), "beatdetect") {
		t.Errorf("help output should mention beatdetect:\n%s", output)
	}
}
