// Package tls builds the HTTPS listener configuration for the control API.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/routeplay/internal/config"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

var ErrNoCertificate = errors.New("TLS enabled but no certificate configured")

func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// SetupTLS returns the listener TLS config for server, or nil when TLS is off.
// Explicit cert/key files win over a certificate directory; a directory with
// auto_generate gets a self-signed pair on first use.
func SetupTLS(server config.ServerConfig) (*tls.Config, error) {
	if server.TLS == nil || !server.TLS.Enabled {
		return nil, nil
	}
	minVer, err := parseTLSVersion(server.TLSMinVersion)
	if err != nil {
		return nil, err
	}
	maxVer, err := parseTLSVersion(server.TLSMaxVersion)
	if err != nil {
		return nil, err
	}
	if minVer > maxVer {
		return nil, fmt.Errorf("tls_min_version is above tls_max_version")
	}

	certPath, keyPath := server.TLS.CertFile, server.TLS.KeyFile
	if certPath == "" || keyPath == "" {
		if server.TLS.Dir == "" {
			return nil, ErrNoCertificate
		}
		certPath = filepath.Join(server.TLS.Dir, tlsCrt)
		keyPath = filepath.Join(server.TLS.Dir, tlsKey)
		if server.TLS.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(server.TLS, server.TLS.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}

	src := &certSource{certPath: filepath.Clean(certPath), keyPath: filepath.Clean(keyPath)}
	if _, err := src.load(); err != nil {
		return nil, err
	}
	// #nosec G402 min version is configurable down to 1.2 only
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return src.load() },
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}, nil
}

// certSource re-reads the key pair when the certificate file changes, so
// rotated certificates are picked up without a restart.
type certSource struct {
	certPath, keyPath string

	mu      sync.Mutex
	modTime time.Time
	cert    *tls.Certificate
}

func (c *certSource) load() (*tls.Certificate, error) {
	st, err := os.Stat(c.certPath)
	if err != nil {
		return nil, fmt.Errorf("stat certificate: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cert != nil && st.ModTime().Equal(c.modTime) {
		return c.cert, nil
	}
	pair, err := tls.LoadX509KeyPair(c.certPath, c.keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	c.cert = &pair
	c.modTime = st.ModTime()
	return c.cert, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func orDefault[T string | []string](v, def T) T {
	if len(v) == 0 {
		return def
	}
	return v
}

// generateCertificate writes a self-signed pair into destDir.
func generateCertificate(tlsConfig *config.TLSConfig, destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	autoGen := tlsConfig.AutoGen
	if autoGen == nil {
		autoGen = &config.AutoGenTLS{}
	}
	validDays := autoGen.ValidDays
	if validDays <= 0 {
		validDays = 365 * 5
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   orDefault(autoGen.CommonName, "localhost"),
		Organization: orDefault(autoGen.Organization, "routeplay"),
		DNSNames:     orDefault(autoGen.DNSNames, []string{"localhost"}),
		IPAddresses:  orDefault(autoGen.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
		CACertPath:   filepath.Join(destDir, tlsCaCrt),
	})
}
