package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("JOBSIEVE_TEST_SECRET", " from-env ")

	cases := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{File: tokenFile, Env: "JOBSIEVE_TEST_SECRET", Value: "inline"}, want: "from-file"},
		{name: "env before value", src: Source{Env: "JOBSIEVE_TEST_SECRET", Value: "inline"}, want: "from-env"},
		{name: "unset env falls back to value", src: Source{Env: "JOBSIEVE_TEST_UNSET", Value: " inline "}, want: "inline"},
		{name: "empty file", src: Source{Name: "hh token", File: emptyFile}, wantErr: "hh token file"},
		{name: "missing file", src: Source{File: filepath.Join(dir, "missing")}, wantErr: "reading secret"},
		{name: "nothing configured", src: Source{Name: "gemini api key"}, wantErr: "gemini api key: secret is not configured"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Load(tc.src)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("Load() = %q, %v; want %q", got, err, tc.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	got, err := LoadOptional(Source{Name: "hh token"})
	if err != nil || got != "" {
		t.Fatalf("unconfigured optional secret should be empty, got %q, %v", got, err)
	}

	_, err = LoadOptional(Source{File: filepath.Join(t.TempDir(), "missing")})
	if err == nil || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("a broken file must still fail, got %v", err)
	}
}
