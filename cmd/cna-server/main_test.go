package main

import "testing"

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	want := map[string]bool{"up": false, "status": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("migrate is missing subcommand %q (have %v)", n, names)
		}
	}
}

func TestServeCmd(t *testing.T) {
	if serveCmd().Use != "serve" {
		t.Error("serve command misnamed")
	}
}
