package monitoring

import (
	"context"
	"fmt"
	"os"
	"time"
)

// AddFileCheck verifies that a required file (state config, TLS material)
// exists and is readable.
func (h *HealthChecker) AddFileCheck(name, path string, interval, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		if info.IsDir() {
			return false, fmt.Errorf("%s is a directory", path)
		}
		return true, nil
	}, interval, timeout)
}

// AddCertificateCheck verifies the host certificate pair used for pairing
// is present on disk.
func (h *HealthChecker) AddCertificateCheck(certPath, keyPath string, interval, timeout time.Duration) {
	h.AddCheck("certificate", func(ctx context.Context) (bool, error) {
		for _, p := range []string{certPath, keyPath} {
			if _, err := os.Stat(p); err != nil {
				return false, err
			}
		}
		return true, nil
	}, interval, timeout)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
