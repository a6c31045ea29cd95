package handler

import (
	"os"
	"path/filepath"
	"strings"

	"autolecture/internal/appdirs"
)

var appDirsResolver = appdirs.Resolve

const fileRoute = "/api/file/"

// runRootCandidates lists the directories run files may be served from,
// the configured one first.
func (h *Handler) runRootCandidates() []string {
	candidates := make([]string, 0, 3)
	candidates = append(candidates, h.RunRoot)
	if dirs, err := appDirsResolver(); err == nil {
		candidates = append(candidates, dirs.RunRoot)
	}
	candidates = append(candidates, appdirs.RunRootName)
	return uniquePaths(candidates...)
}

// resolveDownloadPath maps a requested "runs/<run id>/<file>" path to a
// file inside one of roots. Anything escaping the roots is rejected.
func resolveDownloadPath(roots []string, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	requested = strings.TrimPrefix(requested, "/")
	if hasParentTraversal(requested) {
		return "", false
	}
	requested = filepath.ToSlash(filepath.Clean(requested))
	requested = strings.TrimPrefix(requested, appdirs.RunRootName+"/")
	if requested == "." || requested == "" || requested == appdirs.RunRootName {
		return "", false
	}

	var fallback string
	for _, rootDir := range roots {
		candidate := filepath.Clean(filepath.Join(rootDir, filepath.FromSlash(requested)))
		if !isPathWithinRoot(rootDir, candidate) {
			continue
		}
		if fallback == "" {
			fallback = candidate
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	if fallback == "" {
		return "", false
	}
	return fallback, true
}

// fileURL returns the download URL for a file stored under one of roots,
// or "" when the file lies elsewhere.
func fileURL(roots []string, path string) string {
	if path == "" {
		return ""
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		p, err := filepath.Abs(path)
		if err != nil || !isPathWithinRoot(abs, p) {
			continue
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil || rel == "." {
			continue
		}
		return fileRoute + appdirs.RunRootName + "/" + filepath.ToSlash(rel)
	}
	return ""
}

func uniquePaths(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	paths := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := strings.TrimSpace(value)
		if cleaned == "" {
			continue
		}
		cleaned = filepath.Clean(cleaned)
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		paths = append(paths, cleaned)
	}
	return paths
}

func isPathWithinRoot(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func hasParentTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
