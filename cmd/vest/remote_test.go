package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// runRemote invokes a remote subcommand directly and returns its output.
func runRemote(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := cmd.RunE(cmd, args)
	return buf.String(), err
}

func mustRemote(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := runRemote(t, cmd, args...)
	if err != nil {
		t.Fatalf("remote %s %v: %v", cmd.Name(), args, err)
	}
	return out
}

func TestRemotesFileRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	prod := Remote{
		URL:      "https://vesting.example.com",
		GRPCAddr: "vesting.example.com:9090",
		Token:    "tok_abc",
		Keypair:  "/keys/admin.json",
		NATSURL:  "nats://prod:4222",
	}
	in := RemotesConfig{Active: "prod", Remotes: map[string]Remote{"prod": prod, "local": {URL: "http://localhost:8080"}}}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" || got.Remotes["prod"] != prod || got.Remotes["local"].URL != "http://localhost:8080" {
		t.Fatalf("loaded %+v", got)
	}

	path, _ := remoteConfigPath()
	for p, want := range map[string]os.FileMode{path: 0o600, filepath.Dir(path): 0o700} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != want {
			t.Errorf("%s mode = %04o, want %04o", p, perm, want)
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left next to %s: %d entries", path, len(entries))
	}
}

func TestLoadRemotesConfig_Missing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || cfg.Remotes == nil || len(cfg.Remotes) != 0 {
		t.Errorf("expected an empty, writable config, got %+v", cfg)
	}
}

func TestLoadRemotesConfig_Corrupt(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, _ := remoteConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("active = [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRemotesConfig(); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestRemotesConfigMethods(t *testing.T) {
	cfg := RemotesConfig{Remotes: map[string]Remote{"b": {URL: "b"}, "a": {URL: "a"}}}

	if names := cfg.Names(); strings.Join(names, ",") != "a,b" {
		t.Errorf("Names() = %v", names)
	}
	if _, _, err := cfg.Lookup(""); err == nil {
		t.Error("Lookup with no active remote should fail")
	}
	if err := cfg.Use("ghost"); err == nil {
		t.Error("Use of an unknown remote should fail")
	}
	if err := cfg.Use("b"); err != nil {
		t.Fatal(err)
	}
	if name, r, err := cfg.Lookup(""); err != nil || name != "b" || r.URL != "b" {
		t.Errorf("Lookup(\"\") = %q %+v %v", name, r, err)
	}
	if err := cfg.Remove("b"); err != nil {
		t.Fatal(err)
	}
	if cfg.Active != "" {
		t.Errorf("removing the active remote should clear it, got %q", cfg.Active)
	}
	if err := cfg.Remove("b"); err == nil {
		t.Error("second Remove should fail")
	}
}

func TestRemoteCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRemote(t, remoteAddCmd, "local", "http://localhost:8080")
	mustRemote(t, remoteAddCmd, "local", "http://localhost:8080") // upsert
	if out := mustRemote(t, remoteUseCmd, "local"); !strings.Contains(out, `"local"`) {
		t.Errorf("use output = %q", out)
	}
	if out := mustRemote(t, remoteListCmd); !strings.Contains(out, "* local") {
		t.Errorf("list missing active marker:\n%s", out)
	}
	out := mustRemote(t, remoteShowCmd)
	for _, want := range []string{"local (active)", "http://localhost:8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "token:") {
		t.Errorf("show should omit unset fields:\n%s", out)
	}

	mustRemote(t, remoteRemoveCmd, "local")
	cfg, _ := loadRemotesConfig()
	if len(cfg.Remotes) != 0 || cfg.Active != "" {
		t.Errorf("after remove: %+v", cfg)
	}
	if out := mustRemote(t, remoteListCmd); !strings.Contains(out, "no remotes configured") {
		t.Errorf("empty list output = %q", out)
	}
	if out := mustRemote(t, remoteUseCmd); !strings.Contains(out, "cleared") {
		t.Errorf("clear output = %q", out)
	}
}

func TestRemoteTokensAreMasked(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := remoteAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("token", "") })

	mustRemote(t, remoteAddCmd, "prod", "https://vesting.example.com")
	mustRemote(t, remoteUseCmd, "prod")

	for _, tc := range []struct {
		cmd  *cobra.Command
		want string
	}{
		{remoteListCmd, "tok_very..."},
		{remoteShowCmd, "tok_very**********"},
	} {
		out := mustRemote(t, tc.cmd)
		if strings.Contains(out, "tok_verylongsecret") {
			t.Errorf("%s leaked the full token:\n%s", tc.cmd.Name(), out)
		}
		if !strings.Contains(out, tc.want) {
			t.Errorf("%s: want %q in\n%s", tc.cmd.Name(), tc.want, out)
		}
	}
}

func TestRemoteCommandErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"use unknown", remoteUseCmd, []string{"ghost"}},
		{"remove unknown", remoteRemoveCmd, []string{"ghost"}},
		{"show no active", remoteShowCmd, nil},
		{"show unknown", remoteShowCmd, []string{"ghost"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			if _, err := runRemote(t, tc.cmd, tc.args...); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	for _, tc := range []struct {
		token, suffix, want string
	}{
		{"", "...", ""},
		{"short", "...", "short"},
		{"12345678", "", "12345678"},
		{"123456789abc", "...", "12345678..."},
		{"123456789abc", "", "12345678****"},
	} {
		if got := maskToken(tc.token, tc.suffix); got != tc.want {
			t.Errorf("maskToken(%q, %q) = %q, want %q", tc.token, tc.suffix, got, tc.want)
		}
	}
}
