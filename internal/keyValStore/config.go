package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // keep everything in RAM, Paths is ignored
	Logger           *logrus.Logger
}

func (sc *StoreConfig) checkConfig() error {
	if sc.InMemory {
		return nil
	}

	if len(sc.Paths) == 0 {
		return errors.New("no path provided in configuration")
	}

	path := sc.Paths[0] // Currently only the first path is utilized
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create data path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("read disk usage: %w", err)
	}

	availableSpaceInGB := usage.Free / (1024 * 1024 * 1024)
	if sc.MinimumFreeSpace > 0 && availableSpaceInGB < uint64(sc.MinimumFreeSpace) {
		return fmt.Errorf("not enough space available on disk: %d GB free, %d GB required", availableSpaceInGB, sc.MinimumFreeSpace)
	}

	return nil
}
