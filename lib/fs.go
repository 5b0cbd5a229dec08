package lib

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RemountRootRW remounts / read-write. Minimal root filesystems often boot
// with / mounted read-only, and init descriptors have to be written there.
func RemountRootRW() error {
	return remountRW("/")
}

func remountRW(target string) error {
	// MS_REMOUNT without MS_RDONLY clears the read-only flag
	if err := unix.Mount("none", target, "", unix.MS_REMOUNT, ""); err != nil {
		return fmt.Errorf("remount %s rw: %w", target, err)
	}
	return nil
}
