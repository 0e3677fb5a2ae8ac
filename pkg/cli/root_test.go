package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonic-net/kdumpctl/pkg/configdb"
	"github.com/sonic-net/kdumpctl/pkg/kdump"
)

func TestCommandTree(t *testing.T) {
	root := New()

	want := []string{
		"enable", "config-next", "disable",
		"memory", "num-dumps", "remote", "ssh-string", "ssh-path",
		"show",
	}
	var got []string
	for _, c := range root.Commands {
		got = append(got, c.Name)
	}
	assert.Equal(t, want, got)

	var show []string
	for _, c := range root.Commands[len(root.Commands)-1].Commands {
		show = append(show, c.Name)
	}
	assert.Equal(t, []string{"config", "status", "records"}, show)
}

func TestSuggestCommand(t *testing.T) {
	cmds := New().Commands

	tests := []struct {
		input string
		want  string
	}{
		{"enabel", "enable"},
		{"disalbe", "disable"},
		{"rmote", "remote"},
		{"completely-unrelated", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, suggestCommand(cmds, tt.input), "input %q", tt.input)
	}
}

type fixedDB struct {
	d configdb.Desired
}

func (f fixedDB) DesiredConfig(context.Context) configdb.Desired { return f.d }

func TestShowConfigWritesJSON(t *testing.T) {
	desired := configdb.Desired{
		Enabled:    true,
		MemorySpec: "256M",
		NumDumps:   3,
	}

	orig := newReconciler
	newReconciler = func(log *slog.Logger) (*kdump.Reconciler, func()) {
		return &kdump.Reconciler{DB: fixedDB{d: desired}, Log: slog.Default()}, func() {}
	}
	t.Cleanup(func() { newReconciler = orig })

	out := filepath.Join(t.TempDir(), "config.json")
	err := Run(context.Background(), []string{"kdumpctl", "show", "config", "--output", out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var got configdb.Desired
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, desired, got)
}

func TestShowConfigRejectsUnknownFormat(t *testing.T) {
	err := Run(context.Background(), []string{"kdumpctl", "show", "config", "--format", "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
