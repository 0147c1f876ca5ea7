package config

import "fmt"

// CurrentVersion is the config file format this build reads. A file that
// omits version is taken to be current.
const CurrentVersion = 1

// VersionError rejects a config file written for another format version.
type VersionError struct {
	Version int

	// Newer is set when the file comes from a later scholar release.
	Newer bool
}

func (e *VersionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Newer {
		return fmt.Sprintf("config version %d is newer than this build (current: %d); upgrade scholar to continue", e.Version, CurrentVersion)
	}
	return fmt.Sprintf("config version %d is invalid (current: %d)", e.Version, CurrentVersion)
}

// ValidateVersion accepts 0 and CurrentVersion.
func ValidateVersion(version int) error {
	switch {
	case version == 0, version == CurrentVersion:
		return nil
	case version > CurrentVersion:
		return &VersionError{Version: version, Newer: true}
	}
	return &VersionError{Version: version}
}
