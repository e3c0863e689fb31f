package agent

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/issueforge/issueforge/internal/gitx"
)

var strayOutputRe = regexp.MustCompile(`^coder_output_attempt_\d+\.md$`)

// CleanupStrayOutputs removes untracked coder output files left in the
// repo root so they never end up staged with the real change. Tracked
// files with matching names are left alone.
func CleanupStrayOutputs(git gitx.Runner, repoDir string) []string {
	out, err := git.Run(repoDir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil
	}
	var removed []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || !strayOutputRe.MatchString(filepath.Base(name)) {
			continue
		}
		if filepath.Dir(name) != "." {
			continue
		}
		if err := os.Remove(filepath.Join(repoDir, name)); err == nil {
			removed = append(removed, name)
		}
	}
	return removed
}
