package cmd

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestServeCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		wantErr        bool
		expectedOutput string
	}{
		{
			name:           "serve command with help",
			args:           []string{"serve", "--help"},
			wantErr:        false,
			expectedOutput: "Start the video backend HTTP server",
		},
		{
			name:           "serve command with custom port",
			args:           []string{"serve", "--host", "127.0.0.1", "--port", "18473"},
			wantErr:        false,
			expectedOutput: "",
		},
		{
			name:           "serve command with invalid port",
			args:           []string{"serve", "--port", "invalid"},
			wantErr:        true,
			expectedOutput: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useTempStorage(t)

			// Cancel quickly so the server shuts down on its own. Subcommands
			// keep the context of an earlier execution, so set it on serve.
			if strings.Contains(tt.name, "custom port") {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()
				serveCmd.SetContext(ctx)
				defer serveCmd.SetContext(context.Background())
			}

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

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCmd()
	found, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("Failed to find serve command: %v", err)
	}

	portFlag := found.Flags().Lookup("port")
	if portFlag == nil {
		t.Error("Expected port flag to be registered")
	}

	hostFlag := found.Flags().Lookup("host")
	if hostFlag == nil {
		t.Error("Expected host flag to be registered")
	}
}
