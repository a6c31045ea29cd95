// Package deps locates the external programs a run needs, which today is a
// Chromium-family browser with remote debugging support.
package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type DependencyTier string

const (
	DependencyTierMust     DependencyTier = "must"
	DependencyTierOptional DependencyTier = "optional"
)

type DependencyStatus string

const (
	DependencyStatusOK      DependencyStatus = "ok"
	DependencyStatusMissing DependencyStatus = "missing"
	DependencyStatusError   DependencyStatus = "error"
)

type DependencySource string

const (
	DependencySourceConfig   DependencySource = "config"
	DependencySourceLookPath DependencySource = "lookpath"
)

type DependencySpec struct {
	ID             string
	Name           string
	Command        string
	Tier           DependencyTier
	ConfiguredPath string
	Hint           string
}

type DependencyState struct {
	DependencySpec
	ResolvedPath string
	Status       DependencyStatus
	Source       DependencySource
	Error        string
}

type PathResolver struct {
	LookPath func(file string) (string, error)
	AbsPath  func(path string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
}

func NewPathResolver() PathResolver {
	return PathResolver{
		LookPath: exec.LookPath,
		AbsPath:  filepath.Abs,
		Stat:     os.Stat,
	}
}

func (r PathResolver) Resolve(spec DependencySpec) DependencyState {
	state := DependencyState{DependencySpec: spec}
	configured := strings.TrimSpace(spec.ConfiguredPath)

	if configured != "" {
		state.Source = DependencySourceConfig
		resolvedPath, err := r.resolveConfiguredPath(configured)
		if err == nil {
			state.Status = DependencyStatusOK
			state.ResolvedPath = resolvedPath
			return state
		}

		if absPath, absErr := r.AbsPath(configured); absErr == nil {
			state.ResolvedPath = absPath
		} else {
			state.ResolvedPath = configured
		}
		state.Error = err.Error()
		state.Status = statusFor(err)
		return state
	}

	state.Source = DependencySourceLookPath
	resolvedPath, err := r.LookPath(spec.Command)
	if err == nil {
		state.Status = DependencyStatusOK
		state.ResolvedPath = resolvedPath
		return state
	}
	state.Error = err.Error()
	state.Status = statusFor(err)
	return state
}

func (r PathResolver) resolveConfiguredPath(configuredPath string) (string, error) {
	if resolvedPath, err := r.LookPath(configuredPath); err == nil {
		return resolvedPath, nil
	}

	absPath, err := r.AbsPath(configuredPath)
	if err != nil {
		return "", err
	}
	if _, err = r.Stat(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func statusFor(err error) DependencyStatus {
	if isMissingPathError(err) {
		return DependencyStatusMissing
	}
	return DependencyStatusError
}

func ResolveDependencyStates(specs []DependencySpec, resolver PathResolver) []DependencyState {
	resolved := make([]DependencyState, 0, len(specs))
	for _, spec := range specs {
		resolved = append(resolved, resolver.Resolve(spec))
	}
	return resolved
}

// browserCommands lists well-known browser executables per platform, most
// preferred first.
var browserCommands = map[string][]string{
	"linux":   {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "microsoft-edge"},
	"darwin":  {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", "/Applications/Chromium.app/Contents/MacOS/Chromium", "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
	"windows": {"chrome.exe", `C:\Program Files\Google\Chrome\Application\chrome.exe`, `C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`},
}

// BuildBrowserInventory returns the browser candidates for goos. A
// configured path comes first and is the only must-have entry.
func BuildBrowserInventory(configuredPath, goos string) []DependencySpec {
	specs := make([]DependencySpec, 0, 6)
	if strings.TrimSpace(configuredPath) != "" {
		specs = append(specs, DependencySpec{
			ID:             "browser",
			Name:           "browser (configured)",
			Tier:           DependencyTierMust,
			ConfiguredPath: configuredPath,
			Hint:           "Set by [browser] path; fix or clear it to fall back to auto-detection.",
		})
	}
	for _, command := range browserCommands[goos] {
		specs = append(specs, DependencySpec{
			ID:      "browser",
			Name:    filepath.Base(command),
			Command: command,
			Tier:    DependencyTierOptional,
			Hint:    "Any one Chromium-family browser is enough.",
		})
	}
	return specs
}

// FindBrowser returns the first usable browser. A configured path that does
// not resolve is an error rather than a reason to pick another browser.
func FindBrowser(configuredPath, goos string, resolver PathResolver) (string, error) {
	states := ResolveDependencyStates(BuildBrowserInventory(configuredPath, goos), resolver)
	for _, state := range states {
		if state.Status == DependencyStatusOK {
			return state.ResolvedPath, nil
		}
		if state.Source == DependencySourceConfig {
			return "", fmt.Errorf("configured browser %q: %s", state.ConfiguredPath, state.Error)
		}
	}
	return "", errors.New("no Chromium-family browser found; install Chrome or set [browser] path")
}

func FormatDependencyReport(states []DependencyState) string {
	if len(states) == 0 {
		return "No dependencies to diagnose."
	}

	var builder strings.Builder
	builder.WriteString("Dependency status")

	for _, state := range states {
		resolvedPath := strings.TrimSpace(state.ResolvedPath)
		if resolvedPath == "" {
			resolvedPath = "unknown"
		}

		source := strings.TrimSpace(string(state.Source))
		if source == "" {
			source = "n/a"
		}

		builder.WriteString("\n")
		builder.WriteString(fmt.Sprintf("- %s [%s]: %s | path=%s | source=%s", state.Name, strings.ToUpper(string(state.Tier)), state.Status, resolvedPath, source))
		if state.Error != "" {
			builder.WriteString("\n  error: ")
			builder.WriteString(state.Error)
		}
		if state.Hint != "" {
			builder.WriteString("\n  hint: ")
			builder.WriteString(state.Hint)
		}
	}

	return builder.String()
}

func isMissingPathError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return true
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return true
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "not found") || strings.Contains(message, "cannot find")
}
