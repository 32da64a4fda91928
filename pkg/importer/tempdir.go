package importer

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
)

// tempDirs are the temporary directories of one run.
type tempDirs []string

// Make creates a directory below base (os.TempDir when empty).
func (t *tempDirs) Make(base string) (string, error) {
	dir, err := os.MkdirTemp(base, "probav-")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	*t = append(*t, dir)
	return dir, nil
}

// RemoveAll deletes every directory, collecting all failures.
func (t *tempDirs) RemoveAll() error {
	var result *multierror.Error
	for _, dir := range *t {
		if err := os.RemoveAll(dir); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", dir, err))
		}
	}
	*t = nil
	return result.ErrorOrNil()
}
