package outbox

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalCandidates lists the on-disk locations a legacy PDF reference may live at,
// in lookup order. References escaping publicDir are dropped.
func LocalCandidates(publicDir, ref string) []string {
	ref = strings.TrimSpace(ref)
	if ref == "" || publicDir == "" {
		return nil
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		ref = u.Path
	}
	clean := path.Clean("/" + strings.TrimPrefix(ref, "/"))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return nil
	}
	root := filepath.Clean(publicDir)
	candidates := []string{
		filepath.Join(root, filepath.FromSlash(rel)),
		filepath.Join(root, "pdfs", filepath.Base(rel)),
		filepath.Join(root, "uploads", filepath.Base(rel)),
		filepath.Join(root, "generated", filepath.Base(rel)),
	}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		if !strings.HasPrefix(c, root+string(filepath.Separator)) {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FindLocal returns the first existing regular file for ref under publicDir.
func FindLocal(publicDir, ref string) (string, bool) {
	for _, c := range LocalCandidates(publicDir, ref) {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// RelativeLocal resolves ref like FindLocal but returns the match relative to
// publicDir in slash form, the shape stored in AttachmentRef.LocalPath.
func RelativeLocal(publicDir, ref string) (string, bool) {
	found, ok := FindLocal(publicDir, ref)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(filepath.Clean(publicDir), found)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}
