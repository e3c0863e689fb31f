package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Verification is the post-commit integrity check result.
type Verification struct {
	Status   string   `json:"status"` // "passed", "failed", or "skipped"
	Problems []string `json:"problems,omitempty"`
}

// ExtractTrailer returns the value of a commit message trailer, or ""
// when absent. Only the last occurrence counts, matching git's own
// trailer semantics.
func ExtractTrailer(message, key string) string {
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `:\s*(.+)$`)
	matches := re.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.TrimSpace(matches[len(matches)-1][1])
}

// Verify checks, after the commit exists, that the trailers on HEAD
// name the registered bundle, that the file on disk still hashes to
// the registered digest, and that the bundle is actually part of the
// HEAD tree. Failures are collected, not short-circuited, so the
// status artifact lists everything wrong at once.
func (r *Registrar) Verify(reg *Registration) (*Verification, error) {
	if reg.Status != "registered" {
		v := &Verification{Status: "skipped"}
		return v, r.run.WriteJSON("trace_verify.json", v)
	}

	var problems []string

	if r.cfg.AppendTrailers {
		message, err := gitHeadMessage(r)
		if err != nil {
			return nil, err
		}
		file := ExtractTrailer(message, TrailerFile)
		sum := ExtractTrailer(message, TrailerSHA)
		if file == "" || sum == "" {
			problems = append(problems, "commit message is missing trace trailers")
		} else {
			if file != reg.File {
				problems = append(problems, fmt.Sprintf("trailer file %q does not match registered %q", file, reg.File))
			}
			if sum != reg.SHA256 {
				problems = append(problems, fmt.Sprintf("trailer hash %q does not match registered %q", sum, reg.SHA256))
			}
		}
	}

	data, err := os.ReadFile(filepath.Join(r.repoDir, reg.File))
	if err != nil {
		problems = append(problems, fmt.Sprintf("trace bundle unreadable: %v", err))
	} else {
		got := sha256.Sum256(data)
		if hex.EncodeToString(got[:]) != reg.SHA256 {
			problems = append(problems, "trace bundle on disk does not match the registered hash")
		}
	}

	if _, err := r.git.Run(r.repoDir, "cat-file", "-e", "HEAD:"+reg.File); err != nil {
		problems = append(problems, fmt.Sprintf("trace bundle is not in the HEAD tree: %v", err))
	}

	v := &Verification{Status: "passed"}
	if len(problems) > 0 {
		v.Status = "failed"
		v.Problems = problems
	}
	if err := r.run.WriteJSON("trace_verify.json", v); err != nil {
		return nil, err
	}
	return v, nil
}

func gitHeadMessage(r *Registrar) (string, error) {
	out, err := r.git.Run(r.repoDir, "log", "-1", "--pretty=%B")
	if err != nil {
		return "", fmt.Errorf("read HEAD message: %w", err)
	}
	return out, nil
}
