package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/charmbracelet/codectx/internal/codectx"
	"github.com/charmbracelet/codectx/internal/config"
	"github.com/charmbracelet/codectx/internal/tokens"
)

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{" YES \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	} {
		t.Run(strings.TrimSpace(tc.input), func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			p := &promptConfirmer{in: strings.NewReader(tc.input), out: &out}
			ok, err := p.ConfirmCost(context.Background(), 12.25, 1234)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
			require.Contains(t, out.String(), "1,234 texts")
			require.Contains(t, out.String(), "$12.25")
		})
	}
}

func TestPromptConfirmerCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &promptConfirmer{in: strings.NewReader("y\n"), out: &bytes.Buffer{}}
	ok, err := p.ConfirmCost(ctx, 5, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}

func TestContextFlagsApply(t *testing.T) {
	t.Parallel()

	var flags contextFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--auto-tokens", "0", "--diff", "HEAD~1", "--embeddings"}))

	opts := config.DefaultOptions()
	flags.apply(cmd, &opts)
	require.NotNil(t, opts.AutoTokens)
	require.Zero(t, opts.AutoCap())
	require.Equal(t, "HEAD~1", opts.DiffBaseline)
	require.True(t, opts.UseEmbeddings)
	require.False(t, opts.NoCodeMap)

	untouched := config.DefaultOptions()
	var none contextFlags
	plain := &cobra.Command{Use: "plain"}
	none.register(plain)
	require.NoError(t, plain.ParseFlags(nil))
	none.apply(plain, &untouched)
	require.Nil(t, untouched.AutoTokens)
	require.Equal(t, -1, untouched.AutoCap())
}

func TestSchemaCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"schema"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), `"auto_tokens"`)
	require.Contains(t, out.String(), `"file_exclude_globs"`)
}

func TestListCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0, 1, 2}, 0o644))

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--cwd", dir, "--exclude", "*.txt", "ls"})
	require.NoError(t, root.Execute())
	require.Equal(t, "main.go\n", out.String())
}

func TestAssembleCeilingDefaultsToContextWindow(t *testing.T) {
	t.Parallel()

	c, err := codectx.New(context.Background(), t.TempDir(), codectx.WithOptions(config.DefaultOptions()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	cmd := newAssembleCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	ceiling, err := cmd.Flags().GetInt("tokens")
	require.NoError(t, err)

	got, err := resolveCeiling(cmd, c, "gpt-4o", ceiling)
	require.NoError(t, err)
	require.Equal(t, 128000, got)

	_, err = resolveCeiling(cmd, c, "mystery-model", ceiling)
	require.ErrorIs(t, err, tokens.ErrUnknownModel)

	explicit := newAssembleCmd()
	require.NoError(t, explicit.ParseFlags([]string{"--tokens", "0"}))
	got, err = resolveCeiling(explicit, c, "gpt-4o", 0)
	require.NoError(t, err)
	require.Zero(t, got)
}
