package tls

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/routeplay/internal/config"
)

// DevConfig returns a self-signed setup under baseDir/tls, generated on
// first use. Used by `routeplay serve --tls-dev`.
func DevConfig(baseDir string) (*config.TLSConfig, error) {
	certDir := filepath.Join(baseDir, "tls")
	if err := os.MkdirAll(certDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create TLS directory: %w", err)
	}
	return &config.TLSConfig{
		Enabled:      true,
		Dir:          certDir,
		AutoGenerate: true,
		AutoGen: &config.AutoGenTLS{
			CommonName: "localhost",
			DNSNames:   []string{"localhost", "127.0.0.1"},
			ValidDays:  365,
		},
	}, nil
}
