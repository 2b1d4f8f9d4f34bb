// Package infra holds small process-level helpers with no domain knowledge.
package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
)

// EnsureWorkDir expands base (handling a leading ~), joins any extra path
// segments, creates the directory if missing and returns the absolute path.
// Failure to prepare the data dir is unrecoverable.
func EnsureWorkDir(base string, path ...string) string {
	parts := append([]string{base}, path...)
	workDir, err := homedir.Expand(filepath.Join(parts...))
	if err != nil {
		log.WithError(err).Fatalln("cant expand work dir")
	}
	if err = os.MkdirAll(workDir, 0o700); err != nil {
		log.WithError(err).Fatalln("cant create work dir")
	}
	return workDir
}
