package cmd

import (
	"strings"
	"testing"
)

func TestMigrateCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "migrate command with help",
			args:           []string{"migrate", "--help"},
			wantErr:        false,
			expectedOutput: "Manage database migrations",
		},
		{
			name:           "migrate up subcommand",
			args:           []string{"migrate", "up", "--help"},
			wantErr:        false,
			expectedOutput: "Apply all pending database migrations",
		},
		{
			name:           "migrate down subcommand",
			args:           []string{"migrate", "down", "--help"},
			wantErr:        false,
			expectedOutput: "Drop every video backend table",
		},
		{
			name:           "migrate status subcommand",
			args:           []string{"migrate", "status", "--help"},
			wantErr:        false,
			expectedOutput: "Display the current status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.expectedOutput != "" && !strings.Contains(output, tt.expectedOutput) {
				t.Errorf("Expected output to contain %q, got %q", tt.expectedOutput, output)
			}
		})
	}
}

func TestMigrateCommandSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	if err != nil {
		t.Fatalf("Failed to find migrate command: %v", err)
	}

	expectedSubcommands := []string{"up", "down", "status"}
	for _, subCmd := range expectedSubcommands {
		found := false
		for _, child := range migrateCmd.Commands() {
			if child.Name() == subCmd {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected migrate command to have %q subcommand", subCmd)
		}
	}
}

func TestMigrateLifecycle(t *testing.T) {
	useTempStorage(t)

	output, err := execute(t, "migrate", "status")
	if err != nil {
		t.Fatalf("status before up: %v", err)
	}
	if !strings.Contains(output, "pending") {
		t.Errorf("Expected pending tables before migrating, got %q", output)
	}

	output, err = execute(t, "migrate", "up", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(output, "would be created") {
		t.Errorf("Expected dry run to list tables to create, got %q", output)
	}

	if _, err := execute(t, "migrate", "up"); err != nil {
		t.Fatalf("up: %v", err)
	}

	output, err = execute(t, "migrate", "status")
	if err != nil {
		t.Fatalf("status after up: %v", err)
	}
	if !strings.Contains(output, "applied") || strings.Contains(output, "pending") {
		t.Errorf("Expected every table applied, got %q", output)
	}

	output, err = execute(t, "migrate", "down")
	if err != nil {
		t.Fatalf("down without confirmation: %v", err)
	}
	if !strings.Contains(output, "Migration rollback cancelled") {
		t.Errorf("Expected rollback to be cancelled without confirmation, got %q", output)
	}

	if _, err := execute(t, "migrate", "down", "--yes"); err != nil {
		t.Fatalf("down: %v", err)
	}

	output, err = execute(t, "migrate", "status")
	if err != nil {
		t.Fatalf("status after down: %v", err)
	}
	if !strings.Contains(output, "pending") {
		t.Errorf("Expected pending tables after rollback, got %q", output)
	}
}
