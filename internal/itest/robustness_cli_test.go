//go:build integration

package itest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

const cliTimeout = 60 * time.Second

type robustCase struct {
	name            string
	args            func(t *testing.T, tmp string) []string
	env             map[string]string
	wantContains    []string
	wantNotContains []string
}

type cliRunResult struct {
	exitCode int
	output   string
}

func TestRobustness_ArgsValidation(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name:         "run without video",
			args:         staticArgs("run", "--audio", "a.wav"),
			wantContains: []string{`required flag(s) "video" not set`},
		},
		{
			name:         "run with positional arg",
			args:         staticArgs("run", "--video", "v.mp4", "--audio", "a.wav", "extra"),
			wantContains: []string{`unknown command "extra"`},
		},
		{
			name:         "unknown flag",
			args:         staticArgs("run", "--wat"),
			wantContains: []string{"unknown flag: --wat"},
		},
		{
			name:         "clip factor non int",
			args:         staticArgs("run", "--video", "v.mp4", "--audio", "a.wav", "--cf", "nope"),
			wantContains: []string{`invalid argument "nope" for "--cf"`},
		},
		{
			name:         "negative clip factor",
			args:         staticArgs("run", "--video", "v.mp4", "--audio", "a.wav", "--cf", "-1"),
			wantContains: []string{"clip factor must be >= 0"},
		},
		{
			name:         "negative offset",
			args:         staticArgs("run", "--video", "v.mp4", "--audio", "a.wav", "--ob", "-2"),
			wantContains: []string{"offset begin must be a finite value >= 0"},
		},
		{
			name:         "zero batch workers",
			args:         staticArgs("batch", "--workers", "0"),
			wantContains: []string{"--workers must be >= 1"},
		},
		{
			name:         "history limit zero",
			args:         staticArgs("history", "--limit", "0"),
			wantContains: []string{"--limit must be >= 1"},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_InvalidInputMedia(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name: "missing video",
			args: func(t *testing.T, tmp string) []string {
				t.Helper()
				audio := writeFixture(t, tmp, "a.wav", "x")
				return []string{"run", "--video", filepath.Join(tmp, "does-not-exist.mp4"), "--audio", audio}
			},
			wantContains: []string{"invalid job parameters: stat video:"},
		},
		{
			name: "video is non media file",
			args: func(t *testing.T, tmp string) []string {
				t.Helper()
				video := writeFixture(t, tmp, "not-media.mp4", "plain text")
				audio := writeFixture(t, tmp, "a.wav", "x")
				return []string{"run", "--video", video, "--audio", audio}
			},
			wantContains: []string{"probe failed"},
		},
		{
			name: "empty video folder",
			args: func(t *testing.T, tmp string) []string {
				t.Helper()
				videoDir := filepath.Join(tmp, "video")
				audioDir := filepath.Join(tmp, "audio")
				writeFixture(t, videoDir, "notes.txt", "x")
				writeFixture(t, audioDir, "a.mp3", "x")
				return []string{"batch", "--video-dir", videoDir, "--audio-dir", audioDir}
			},
			wantContains: []string{"no eligible input files"},
		},
		{
			name: "missing video folder",
			args: func(t *testing.T, tmp string) []string {
				t.Helper()
				return []string{"batch", "--video-dir", filepath.Join(tmp, "nope")}
			},
			wantContains: []string{"no eligible input files"},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func TestRobustness_Config(t *testing.T) {
	repoRoot := mustRepoRoot(t)

	cases := []robustCase{
		{
			name: "unknown config key",
			args: func(t *testing.T, tmp string) []string {
				t.Helper()
				cfg := writeFixture(t, tmp, "automv.toml", "[params]\nclip_factr = 2\n")
				return []string{"--config", cfg, "history"}
			},
			wantContains: []string{"config:"},
		},
		{
			name:         "bad log level",
			args:         staticArgs("--log-level", "loud", "history"),
			wantContains: []string{"loud"},
		},
		{
			name:         "history with ledger disabled",
			args:         staticArgs("history"),
			env:          map[string]string{"AUTOMV_LEDGER": ""},
			wantContains: []string{"job ledger is disabled"},
		},
	}

	runRobustCases(t, repoRoot, cases)
}

func runRobustCases(t *testing.T, repoRoot string, cases []robustCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			env := mergeEnv(nil, isolatedEnv(tmp), tc.env)
			res := runCLI(t, repoRoot, tc.args(t, tmp), envMap(env))
			if res.exitCode == 0 {
				t.Fatalf("expected non-zero exit code, got 0\noutput:\n%s", res.output)
			}
			for _, want := range tc.wantContains {
				if !strings.Contains(res.output, want) {
					t.Fatalf("expected output to contain %q\noutput:\n%s", want, res.output)
				}
			}
			for _, notWant := range tc.wantNotContains {
				if strings.Contains(res.output, notWant) {
					t.Fatalf("expected output to not contain %q\noutput:\n%s", notWant, res.output)
				}
			}
		})
	}
}

func runCLI(t *testing.T, repoRoot string, args []string, env map[string]string) cliRunResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmdArgs := append([]string{"run", "./cmd/automv"}, args...)
	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmd.Dir = repoRoot
	cmd.Env = mergeEnv(
		os.Environ(),
		map[string]string{
			"NO_COLOR": "1",
			"TERM":     "dumb",
		},
		env,
	)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("command timed out after %s: go %s", cliTimeout, strings.Join(cmdArgs, " "))
	}

	res := cliRunResult{output: string(out)}
	if err == nil {
		res.exitCode = 0
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}

	t.Fatalf("run command: %v\noutput:\n%s", err, string(out))
	return cliRunResult{}
}

func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		env[kv[:i]] = kv[i+1:]
	}

	for _, set := range overrides {
		for k, v := range set {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return repoRoot
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir fixture dir: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func envMap(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func staticArgs(args ...string) func(t *testing.T, _ string) []string {
	clone := append([]string(nil), args...)
	return func(t *testing.T, _ string) []string {
		t.Helper()
		return append([]string(nil), clone...)
	}
}
