package fileutils

import (
	"errors"
	"fmt"
	"os"
)

// VerifyWritable returns nil if dirPath is a directory files can be
// created in. It creates and removes a probe file to find out.
func VerifyWritable(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dirPath)
	}

	probe, err := os.CreateTemp(dirPath, ".write-check-*")
	if err != nil {
		return err
	}
	return errors.Join(probe.Close(), os.Remove(probe.Name()))
}
