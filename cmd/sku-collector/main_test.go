package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSKUFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestReadSKUFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain list",
			content: "SKU-1\nSKU-2\nSKU-3\n",
			want:    []string{"SKU-1", "SKU-2", "SKU-3"},
		},
		{
			name:    "blank lines and comments skipped",
			content: "# catalog extract\nSKU-1\n\n  \nSKU-2\n# trailing note\n",
			want:    []string{"SKU-1", "SKU-2"},
		},
		{
			name:    "whitespace trimmed",
			content: "  SKU-1  \n\tSKU-2\t\n",
			want:    []string{"SKU-1", "SKU-2"},
		},
		{
			name:    "input duplicates collapsed",
			content: "SKU-1\nSKU-2\nSKU-1\n",
			want:    []string{"SKU-1", "SKU-2"},
		},
		{
			name:    "no trailing newline",
			content: "SKU-1\nSKU-2",
			want:    []string{"SKU-1", "SKU-2"},
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSKUFile(t, tt.content)

			requests, err := readSKUFile(path)
			if err != nil {
				t.Fatalf("readSKUFile() error = %v", err)
			}
			if len(requests) != len(tt.want) {
				t.Fatalf("Got %d requests, want %d", len(requests), len(tt.want))
			}
			for i, want := range tt.want {
				if requests[i].SKU != want {
					t.Errorf("requests[%d].SKU = %q, want %q", i, requests[i].SKU, want)
				}
			}
		})
	}
}

func TestReadSKUFile_Missing(t *testing.T) {
	if _, err := readSKUFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}
