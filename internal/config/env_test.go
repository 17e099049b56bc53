package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Parallel()
	s, err := LoadSettings(lookupMap(map[string]string{
		EnvProject: "proj",
		EnvBucket:  "bucket",
	}))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.IntervalHours != 24 || s.Interval != 24*time.Hour {
		t.Fatalf("interval = %d / %v, want 24h", s.IntervalHours, s.Interval)
	}
	if s.Project != "proj" || s.Bucket != "bucket" || s.Schedule != "" {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestLoadSettingsMissing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{name: "both", env: map[string]string{}, want: []string{EnvProject, EnvBucket}},
		{name: "project", env: map[string]string{EnvBucket: "b"}, want: []string{EnvProject}},
		{name: "bucket empty", env: map[string]string{EnvProject: "p", EnvBucket: ""}, want: []string{EnvBucket}},
		{name: "bucket blank", env: map[string]string{EnvProject: "p", EnvBucket: "   "}, want: []string{EnvBucket}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadSettings(lookupMap(tt.env))
			if !errors.Is(err, ErrMissingEnv) {
				t.Fatalf("err = %v, want ErrMissingEnv", err)
			}
			var me *MissingEnvError
			if !errors.As(err, &me) {
				t.Fatalf("err %T is not *MissingEnvError", err)
			}
			if !reflect.DeepEqual(me.Names, tt.want) {
				t.Fatalf("missing = %v, want %v", me.Names, tt.want)
			}
		})
	}
}

func TestLoadSettingsInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "1", want: time.Hour},
		{raw: " 6 ", want: 6 * time.Hour},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "1.5", wantErr: true},
		{raw: "daily", wantErr: true},
		{raw: "99999999999", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			t.Parallel()
			s, err := LoadSettings(lookupMap(map[string]string{
				EnvProject:       "p",
				EnvBucket:        "b",
				EnvIntervalHours: tt.raw,
			}))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInterval) {
					t.Fatalf("err = %v, want ErrInvalidInterval", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadSettings: %v", err)
			}
			if s.Interval != tt.want {
				t.Fatalf("Interval = %v, want %v", s.Interval, tt.want)
			}
		})
	}
}

func TestLoadDotenvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.env")
	content := "BACKUPD_TEST_KEEP=fromfile\nBACKUPD_TEST_NEW=fromfile\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKUPD_TEST_KEEP", "fromenv")
	t.Setenv("BACKUPD_TEST_NEW", "")
	os.Unsetenv("BACKUPD_TEST_NEW")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("BACKUPD_TEST_KEEP"); got != "fromenv" {
		t.Fatalf("BACKUPD_TEST_KEEP = %q, want fromenv", got)
	}
	if got := os.Getenv("BACKUPD_TEST_NEW"); got != "fromfile" {
		t.Fatalf("BACKUPD_TEST_NEW = %q, want fromfile", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	t.Parallel()
	if err := LoadDotenv(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("expected error for missing env file")
	}
	if err := LoadDotenv(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}
