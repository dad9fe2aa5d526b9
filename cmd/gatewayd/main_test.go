package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/fixtures"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/gateway"
)

// execute runs rootCmd with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	want := []string{"serve", "migrate", "keys create", "keys revoke", "token issue", "hash", "version"}
	for _, path := range want {
		cmd, _, err := rootCmd.Find(strings.Fields(path))
		if err != nil || cmd.Name() != strings.Fields(path)[len(strings.Fields(path))-1] {
			t.Errorf("command %q not registered", path)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "gatewayd "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestHashCommand(t *testing.T) {
	out, err := execute(t, "", "hash", "--cost", "4", fixtures.APIKeySecret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	digest := strings.TrimSpace(out)
	if bcrypt.CompareHashAndPassword([]byte(digest), []byte(fixtures.APIKeySecret)) != nil {
		t.Errorf("digest %q does not match the secret", digest)
	}
}

func TestHashCommand_Stdin(t *testing.T) {
	out, err := execute(t, fixtures.APIKeySecret+"\n", "hash", "--cost", "4")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	digest := strings.TrimSpace(out)
	if bcrypt.CompareHashAndPassword([]byte(digest), []byte(fixtures.APIKeySecret)) != nil {
		t.Errorf("digest %q does not match the stdin secret", digest)
	}
}

func TestHashCommand_Empty(t *testing.T) {
	if _, err := execute(t, "", "hash", "--cost", "4"); err == nil {
		t.Error("hash with no secret succeeded")
	}
}

func TestTokenIssue(t *testing.T) {
	testutil.SetEnv(t, gateway.EnvPrefix+"_AUTH_TOKEN_SECRET", fixtures.TokenSecret)
	testutil.SetEnv(t, gateway.EnvPrefix+"_AUTH_ISSUER", fixtures.TokenIssuer)

	out, err := execute(t, "", "--config", "", "token", "issue", "--subject", fixtures.PrincipalID, "--kind", "pair")
	if err != nil {
		t.Fatalf("token issue: %v", err)
	}
	var pair auth.TokenPair
	if err := json.Unmarshal([]byte(out), &pair); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: fixtures.TokenSecret, Issuer: fixtures.TokenIssuer}, nil)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := codec.Verify(pair.RefreshToken, auth.TokenRefresh)
	if err != nil {
		t.Fatalf("Verify(refresh): %v", err)
	}
	if claims.Subject != fixtures.PrincipalID {
		t.Errorf("subject = %q, want %q", claims.Subject, fixtures.PrincipalID)
	}
}

func TestTokenIssue_UnknownKind(t *testing.T) {
	testutil.SetEnv(t, gateway.EnvPrefix+"_AUTH_TOKEN_SECRET", fixtures.TokenSecret)
	if _, err := execute(t, "", "--config", "", "token", "issue", "--subject", "x", "--kind", "session"); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, gateway.LogConfig{Level: "warn", Format: "json"}).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	newLogger(&buf, gateway.LogConfig{Level: "info", Format: "json"}).Info("shown", "k", "v")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json handler output %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" {
		t.Errorf("msg = %v", rec["msg"])
	}

	buf.Reset()
	newLogger(&buf, gateway.LogConfig{Level: "info", Format: "text"}).Info("shown")
	if !strings.Contains(buf.String(), "level="+slog.LevelInfo.String()) {
		t.Errorf("text handler output %q", buf.String())
	}
}
