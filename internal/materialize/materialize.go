// Package materialize projects database-held proposal content onto the
// filesystem, either into a throwaway staging directory or durably under
// a project root. Every path that reaches the disk is validated first.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"specflow/internal/domain"
	"specflow/internal/domain/models"
)

// ChangesDir is the directory under a project root where proposal trees
// live, mirroring the layout the validation CLI expects.
const ChangesDir = "openspec/changes"

var filePathPattern = regexp.MustCompile(`^[\w\-./]+$`)

// ValidateFilePath checks a proposal-relative file path for traversal
// and injection attempts and returns its normalized form.
func ValidateFilePath(filePath string) (string, error) {
	if strings.Contains(filePath, "..") {
		return "", &domain.PathTraversalError{Path: filePath}
	}
	if strings.HasPrefix(filePath, "/") || (len(filePath) > 1 && filePath[1] == ':') {
		return "", &domain.PathTraversalError{Path: filePath}
	}
	if strings.ContainsRune(filePath, 0) {
		return "", &domain.PathTraversalError{Path: filePath}
	}

	normalized := strings.ReplaceAll(filePath, "\\", "/")
	normalized = strings.Trim(strings.TrimSpace(normalized), "/")

	if normalized == "" || !filePathPattern.MatchString(normalized) {
		return "", &domain.PathTraversalError{Path: filePath}
	}
	return normalized, nil
}

// ResolveWithin canonicalizes path and verifies it stays under root.
func ResolveWithin(path, root string) (string, error) {
	canonicalRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}
	canonicalPath, err := filepath.Abs(path)
	if err != nil {
		return "", &domain.PathTraversalError{Path: path, Root: root}
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &domain.PathTraversalError{Path: path, Root: root}
	}
	return canonicalPath, nil
}

// StagedTree is an ephemeral on-disk projection of a proposal. Close
// removes the whole temporary root.
type StagedTree struct {
	// Root is the temporary directory the CLI should run in.
	Root string
	// ProposalDir is Root/openspec/changes/<name>.
	ProposalDir string
}

func (t *StagedTree) Close() error {
	if t == nil || t.Root == "" {
		return nil
	}
	return os.RemoveAll(t.Root)
}

// Materializer writes proposal snapshots to disk.
type Materializer struct {
	logger *slog.Logger
}

func NewMaterializer(logger *slog.Logger) *Materializer {
	return &Materializer{logger: logger}
}

// StageEphemeral writes snapshot into a fresh temporary directory laid
// out the way the validation CLI expects. The caller owns the returned
// tree and must Close it.
func (m *Materializer) StageEphemeral(ctx context.Context, name string, snapshot models.Snapshot) (*StagedTree, error) {
	tmpRoot, err := os.MkdirTemp("", "specflow-validate-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}

	tree := &StagedTree{
		Root:        tmpRoot,
		ProposalDir: filepath.Join(tmpRoot, ChangesDir, name),
	}
	if err := m.writeTree(tree.ProposalDir, tmpRoot, snapshot); err != nil {
		tree.Close()
		return nil, err
	}

	if m.logger != nil {
		m.logger.Debug("staged proposal tree", "proposal", name, "dir", tree.ProposalDir, "files", len(snapshot))
	}
	return tree, nil
}

// MaterializeDurable writes snapshot under destRoot/openspec/changes/name,
// all files or none. On any write failure the target directory is removed
// before the error is returned, so a partial tree is never left behind.
func (m *Materializer) MaterializeDurable(ctx context.Context, destRoot, name string, snapshot models.Snapshot) (string, error) {
	target, err := ResolveWithin(filepath.Join(destRoot, ChangesDir, name), destRoot)
	if err != nil {
		return "", err
	}

	if err := m.writeTree(target, destRoot, snapshot); err != nil {
		if rmErr := os.RemoveAll(target); rmErr != nil && m.logger != nil {
			m.logger.Error("cleanup of partial materialization failed", "dir", target, "error", rmErr)
		}
		return "", err
	}

	if m.logger != nil {
		m.logger.Info("materialized proposal tree", "proposal", name, "dir", target, "files", len(snapshot))
	}
	return target, nil
}

// Remove deletes a previously materialized tree after verifying it is
// still inside root.
func (m *Materializer) Remove(path, root string) error {
	canonical, err := ResolveWithin(path, root)
	if err != nil {
		return err
	}
	return os.RemoveAll(canonical)
}

func (m *Materializer) writeTree(dir, root string, snapshot models.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for filePath, content := range snapshot {
		normalized, err := ValidateFilePath(filePath)
		if err != nil {
			return err
		}
		dest, err := ResolveWithin(filepath.Join(dir, normalized), root)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", normalized, err)
		}
		if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", normalized, err)
		}
	}
	return nil
}
