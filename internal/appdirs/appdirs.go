// Package appdirs lays out where autolecture keeps its config, logs,
// database, browser profile, downloads and run directories.
package appdirs

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// HomeEnv moves the whole tree to another directory.
const HomeEnv = "AUTOLECTURE_HOME"

const (
	RunRootName = "runs"

	appName          = "AutoLecture"
	configFileName   = "config.toml"
	dbFileName       = "autolecture.db"
	jobCacheFileName = "summarized_sources.json"
)

// Artifact kinds. Each kind gets its own browser download directory and its
// own subdirectory inside a run.
const (
	KindSlides = "slides"
	KindVideo  = "videos"
)

// Paths is the resolved layout. Everything lives under Home:
//
//	config/config.toml
//	logs/
//	runs/<run id>/
//	data/autolecture.db
//	data/summarized_sources.json
//	data/browser-profile/
//	data/downloads/<kind>/
type Paths struct {
	Home         string
	ConfigFile   string
	LogDir       string
	RunRoot      string
	DBPath       string
	JobCacheFile string
	ProfileDir   string
	DownloadRoot string
}

// Layout returns the tree rooted at home. An empty home means the working
// directory.
func Layout(home string) Paths {
	home = strings.TrimSpace(home)
	if home == "" {
		home = "."
	}
	home = filepath.Clean(home)
	data := filepath.Join(home, "data")
	return Paths{
		Home:         home,
		ConfigFile:   filepath.Join(home, "config", configFileName),
		LogDir:       filepath.Join(home, "logs"),
		RunRoot:      filepath.Join(home, RunRootName),
		DBPath:       filepath.Join(data, dbFileName),
		JobCacheFile: filepath.Join(data, jobCacheFileName),
		ProfileDir:   filepath.Join(data, "browser-profile"),
		DownloadRoot: filepath.Join(data, "downloads"),
	}
}

// DownloadDir is where the browser saves files while a workflow of kind runs.
func (p Paths) DownloadDir(kind string) string {
	return filepath.Join(p.DownloadRoot, kind)
}

// Resolve picks Home from AUTOLECTURE_HOME, then the per-user config
// directory on Windows and macOS, then the working directory.
func Resolve() (Paths, error) {
	return resolve(runtime.GOOS, os.Getenv, os.UserConfigDir)
}

func resolve(goos string, getenv func(string) string, userConfigDir func() (string, error)) (Paths, error) {
	if home := strings.TrimSpace(getenv(HomeEnv)); home != "" {
		return Layout(home), nil
	}
	switch goos {
	case "windows", "darwin":
		root, err := userConfigDir()
		if err != nil {
			return Paths{}, err
		}
		if strings.TrimSpace(root) == "" {
			return Paths{}, errors.New("user config dir is empty")
		}
		return Layout(filepath.Join(root, appName)), nil
	default:
		return Layout(""), nil
	}
}
