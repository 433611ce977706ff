package main

import "testing"

func TestStagesCommandRuns(t *testing.T) {
	cmd := newStagesCommand()
	cmd.SetArgs(nil)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("stages: %v", err)
	}
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["run"] || !names["stages"] {
		t.Fatalf("expected run and stages subcommands, got %v", names)
	}
}
