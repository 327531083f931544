package browser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config holds the settings for the shared browser process.
type Config struct {
	ExecPath     string        // path to the Chrome binary; empty uses chromedp discovery
	MaxTabs      string        // "auto" or positive integer string
	ProbeTimeout time.Duration // liveness probe budget per Acquire
}

// DefaultConfig is used in tests to avoid constructing full Config structs.
func DefaultConfig() *Config {
	return &Config{
		MaxTabs:      "auto",
		ProbeTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxTabs != "auto" {
		n, err := strconv.Atoi(c.MaxTabs)
		if err != nil {
			return fmt.Errorf("max tabs must be 'auto' or valid integer")
		}
		if n <= 0 {
			return fmt.Errorf("max tabs must be positive")
		}
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	return nil
}

// TabLimit determines how many concurrent tabs the shared browser may open.
func (c *Config) TabLimit() int {
	if c.MaxTabs == "auto" {
		return autoTabLimit()
	}
	n, err := strconv.Atoi(c.MaxTabs)
	if err != nil || n <= 0 {
		return autoTabLimit()
	}
	return n
}

// autoTabLimit derives the tab ceiling from system RAM.
// Formula: (total RAM - 1.5GB reserved) / 300MB per open tab.
func autoTabLimit() int {
	var totalBytes int64

	v, err := mem.VirtualMemory()
	if err != nil {
		// Conservative estimate if system memory is unreadable
		totalBytes = 4 * 1024 * 1024 * 1024
	} else {
		totalBytes = int64(v.Total)
	}

	reserved := int64(1536 * 1024 * 1024)
	perTab := int64(300 * 1024 * 1024)

	limit := int((totalBytes - reserved) / perTab)
	if limit < 2 {
		limit = 2
	}
	if limit > 32 {
		limit = 32
	}
	return limit
}
