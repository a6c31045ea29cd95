package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"autolecture/config"
	"autolecture/internal/appdirs"
	"autolecture/internal/deps"
	"autolecture/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliOptions struct {
	SourceURL string
	Title     string
	Professor string
	Audience  string
	RunID     string
	Number    int
	SkipVideo bool
	EnvFile   string
	Version   bool
	Diagnose  bool
}

var errUsage = errors.New("usage")

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	flags := flag.NewFlagSet("autolecture", flag.ContinueOnError)
	flags.SetOutput(stderr)

	flags.StringVar(&opts.SourceURL, "url", "", "source video URL to summarize")
	flags.StringVar(&opts.Title, "title", "", "lecture title")
	flags.StringVar(&opts.Professor, "professor", "", "presenter name used in the script greeting")
	flags.StringVar(&opts.Audience, "audience", "", "elementary, middle or general (default from config)")
	flags.IntVar(&opts.Number, "lecture-number", 0, "lecture number shown on the thumbnail")
	flags.StringVar(&opts.RunID, "run-id", "", "run id (default: generated)")
	flags.BoolVar(&opts.SkipVideo, "skip-video", false, "stop after the slide deck")
	flags.StringVar(&opts.EnvFile, "env", ".env", "dotenv file with API keys")
	flags.BoolVar(&opts.Version, "version", false, "print version information")
	flags.BoolVar(&opts.Diagnose, "diagnose", false, "print runtime diagnostics")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if opts.Version || opts.Diagnose {
		return opts, nil
	}
	if opts.SourceURL == "" {
		fmt.Fprintln(stderr, "-url is required")
		flags.Usage()
		return opts, errUsage
	}
	return opts, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
}

func printDiagnose(w io.Writer) {
	fmt.Fprintf(w, "runtime: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "version: %s\n", version)

	if exePath, err := os.Executable(); err == nil {
		fmt.Fprintf(w, "executable: %s\n", exePath)
	} else {
		fmt.Fprintf(w, "executable: <error: %v>\n", err)
	}

	if logDir, err := log.ResolveLogDir(); err == nil {
		printPath(w, "effective_log_dir", logDir)
	} else {
		fmt.Fprintf(w, "path.effective_log_dir: <error: %v>\n", err)
	}

	paths, err := appdirs.Resolve()
	if err != nil {
		fmt.Fprintf(w, "paths: <error: %v>\n", err)
	} else {
		printPath(w, "config", paths.ConfigFile)
		printPath(w, "runs", paths.RunRoot)
		printPath(w, "download.slides", orDefault(config.Conf.Workflow.Slides.Site.DownloadDir, paths.DownloadDir(appdirs.KindSlides)))
		printPath(w, "download.videos", orDefault(config.Conf.Workflow.Video.Site.DownloadDir, paths.DownloadDir(appdirs.KindVideo)))
		printPath(w, "browser_profile", orDefault(config.Conf.Browser.ProfileDir, paths.ProfileDir))
		printPath(w, "database", paths.DBPath)
	}

	states := deps.ResolveDependencyStates(deps.BuildBrowserInventory(config.Conf.Browser.Path, runtime.GOOS), deps.NewPathResolver())
	fmt.Fprintln(w, deps.FormatDependencyReport(states))
	if err := config.CheckConfig(); err != nil {
		fmt.Fprintf(w, "config: invalid (%v)\n", err)
	} else {
		fmt.Fprintln(w, "config: ok")
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func printPath(w io.Writer, name, value string) {
	absPath, err := filepath.Abs(value)
	if err != nil {
		fmt.Fprintf(w, "path.%s: %s (abs_error=%v)\n", name, value, err)
		return
	}

	if _, err = os.Stat(absPath); err == nil {
		fmt.Fprintf(w, "path.%s: %s (exists)\n", name, absPath)
		return
	}
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "path.%s: %s (missing)\n", name, absPath)
		return
	}

	fmt.Fprintf(w, "path.%s: %s (error=%v)\n", name, absPath, err)
}
