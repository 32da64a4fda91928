// Package security validates user supplied paths and scrubs values before
// they reach logs.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// System directories that never hold downloads or temporary rasters.
var forbiddenPrefixes = []string{
	"/etc/",
	"/sys/",
	"/proc/",
	"/boot/",
	"/dev/",
	"/run/",
	"/bin/",
	"/sbin/",
	"/usr/",
	"/lib/",
	"/var/lib/",
}

// ValidateDirectory validates a directory the tool writes into (the
// download cache or the temporary directory). It rejects path traversal and
// system directories. The empty string is allowed and means "not set".
func ValidateDirectory(path string) error {
	if path == "" {
		return nil
	}
	if hasTraversal(path) {
		return errors.New("path traversal not allowed")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.New("cannot validate path")
	}
	if abs == "/" {
		return errors.New("refusing to use the filesystem root")
	}

	for _, prefix := range forbiddenPrefixes {
		if abs+"/" == prefix || strings.HasPrefix(abs, prefix) {
			return fmt.Errorf("access to system path %s not allowed", abs)
		}
	}
	return nil
}

// ValidatePathForReading validates a file path for safe reading operations.
func ValidatePathForReading(path string) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}
	if hasTraversal(path) {
		return errors.New("path traversal not allowed")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.New("cannot validate path")
	}
	for _, prefix := range []string{"/sys/", "/proc/", "/dev/", "/boot/"} {
		if strings.HasPrefix(abs, prefix) {
			return errors.New("access to system paths not allowed")
		}
	}
	return nil
}

// hasTraversal reports whether a relative path climbs out of its start
// directory or an absolute path contains "..".
func hasTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizePath sanitizes a path for safe logging and display.
func SanitizePath(path string) string {
	cleaned := filepath.Clean(path)
	cleaned = strings.ReplaceAll(cleaned, "..", "")
	return filepath.Clean(cleaned)
}

var (
	accessKeyPattern = regexp.MustCompile(`(AKIA|ASIA)[0-9A-Z]{16}`)
	urlTokenPattern  = regexp.MustCompile(`([?&](?:access_token|token|X-Amz-Signature|X-Amz-Credential)=)[^&\s]+`)
)

// SanitizeForLog masks AWS access keys and URL tokens (presigned S3 URLs,
// archive access tokens) in log messages.
func SanitizeForLog(s string) string {
	s = accessKeyPattern.ReplaceAllString(s, "${1}****************")
	return urlTokenPattern.ReplaceAllString(s, "${1}****")
}
