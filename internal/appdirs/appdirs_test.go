package appdirs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	home := filepath.Join("/", "srv", "lectures")
	p := Layout(home)

	assert.Equal(t, home, p.Home)
	assert.Equal(t, filepath.Join(home, "config", "config.toml"), p.ConfigFile)
	assert.Equal(t, filepath.Join(home, "logs"), p.LogDir)
	assert.Equal(t, filepath.Join(home, "runs"), p.RunRoot)
	assert.Equal(t, filepath.Join(home, "data", "autolecture.db"), p.DBPath)
	assert.Equal(t, filepath.Join(home, "data", "summarized_sources.json"), p.JobCacheFile)
	assert.Equal(t, filepath.Join(home, "data", "browser-profile"), p.ProfileDir)
	assert.Equal(t, filepath.Join(home, "data", "downloads", "slides"), p.DownloadDir(KindSlides))
	assert.Equal(t, filepath.Join(home, "data", "downloads", "videos"), p.DownloadDir(KindVideo))
}

func TestLayoutEmptyHomeIsWorkingDir(t *testing.T) {
	p := Layout("  ")
	assert.Equal(t, ".", p.Home)
	assert.Equal(t, filepath.Join("config", "config.toml"), p.ConfigFile)
	assert.Equal(t, "runs", p.RunRoot)
	assert.Equal(t, filepath.Join("data", "downloads", "slides"), p.DownloadDir(KindSlides))
}

func TestResolve(t *testing.T) {
	userDir := filepath.Join("/", "Users", "minji", "Library", "Application Support")
	tests := []struct {
		name     string
		goos     string
		env      string
		wantHome string
	}{
		{name: "env wins everywhere", goos: "darwin", env: "/data/autolecture", wantHome: filepath.Clean("/data/autolecture")},
		{name: "macos uses user config dir", goos: "darwin", wantHome: filepath.Join(userDir, "AutoLecture")},
		{name: "windows uses user config dir", goos: "windows", wantHome: filepath.Join(userDir, "AutoLecture")},
		{name: "linux uses working dir", goos: "linux", wantHome: "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configCalls := 0
			got, err := resolve(tt.goos,
				func(key string) string {
					if key == HomeEnv {
						return tt.env
					}
					return ""
				},
				func() (string, error) {
					configCalls++
					return userDir, nil
				})
			require.NoError(t, err)
			assert.Equal(t, Layout(tt.wantHome), got)
			if tt.env != "" || tt.goos == "linux" {
				assert.Zero(t, configCalls)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	noEnv := func(string) string { return "" }

	_, err := resolve("windows", noEnv, func() (string, error) { return "", errors.New("no profile") })
	assert.ErrorContains(t, err, "no profile")

	_, err = resolve("darwin", noEnv, func() (string, error) { return " ", nil })
	assert.ErrorContains(t, err, "user config dir is empty")
}
