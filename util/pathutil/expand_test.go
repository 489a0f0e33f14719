package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"relative", "/project", "reports/events.jsonl", "/project/reports/events.jsonl"},
		{"absolute", "/project", "/var/tw.sock", "/var/tw.sock"},
		{"home", "/project", "~/tw/events.jsonl", filepath.Join(home, "tw/events.jsonl")},
		{"bare home", "/project", "~", home},
		{"other user", "/project", "~bob/x", "/project/~bob/x"},
		{"cleaned", "/project", "./a/../b", "/project/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.base, tt.path))
		})
	}
}
