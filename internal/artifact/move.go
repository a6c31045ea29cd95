package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"autolecture/log"
	apperrors "autolecture/pkg/errors"
)

type CollisionPolicy string

const (
	CollisionRename    CollisionPolicy = "rename"
	CollisionOverwrite CollisionPolicy = "overwrite"
	CollisionFail      CollisionPolicy = "fail"
)

func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CollisionRename, nil
	case CollisionRename, CollisionOverwrite, CollisionFail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q", s)
	}
}

const timestampLayout = "20060102-150405"

var now = time.Now

// Move places src inside destDir and returns the final path.
func Move(src, destDir string, policy CollisionPolicy) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeArtifactMove, "create artifact dir", err)
	}

	dest := filepath.Join(destDir, filepath.Base(src))
	if _, err := os.Stat(dest); err == nil {
		switch policy {
		case CollisionOverwrite:
			if err := os.Remove(dest); err != nil {
				return "", apperrors.Wrap(apperrors.CodeArtifactMove, "remove existing artifact", err)
			}
		case CollisionFail:
			return "", apperrors.WrapWithDetail(apperrors.CodeArtifactCollision, "artifact already exists", dest, os.ErrExist)
		default:
			dest = freeName(dest)
		}
	}

	if err := os.Rename(src, dest); err != nil {
		// Typically a cross-device move.
		if cpErr := copyFile(src, dest); cpErr != nil {
			return "", apperrors.WrapWithDetail(apperrors.CodeArtifactMove, "move artifact", src, cpErr)
		}
		if rmErr := os.Remove(src); rmErr != nil {
			log.GetLogger().Warn("[Artifact] source left behind after copy", zap.String("src", src), zap.Error(rmErr))
		}
	}
	log.GetLogger().Info("[Artifact] moved", zap.String("src", src), zap.String("dest", dest))
	return dest, nil
}

// freeName appends a timestamp, then a counter, until the path is unused.
func freeName(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext) + "_" + now().Format(timestampLayout)
	candidate := stem + ext
	for i := 2; fileExists(candidate); i++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	return candidate
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

type Artifact struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Ext     string    `json:"ext"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type Reconciler struct {
	Policy       CollisionPolicy
	MaxWait      time.Duration
	PollInterval time.Duration
}

// Reconcile waits for the download the snapshot is watching for and moves
// it into destDir.
func (r Reconciler) Reconcile(ctx context.Context, snap *Snapshot, destDir string) (Artifact, error) {
	src, err := snap.WaitForNewFile(ctx, r.MaxWait, r.PollInterval)
	if err != nil {
		return Artifact{}, err
	}
	final, err := Move(src, destDir, r.Policy)
	if err != nil {
		return Artifact{}, err
	}
	fi, err := os.Stat(final)
	if err != nil {
		return Artifact{}, apperrors.Wrap(apperrors.CodeFileNotFound, "stat moved artifact", err)
	}
	return Artifact{
		Path:    final,
		Name:    fi.Name(),
		Ext:     filepath.Ext(final),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}
