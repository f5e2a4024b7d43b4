package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/routeplay/internal/config"
)

func TestSetupTLS_Disabled(t *testing.T) {
	c, err := SetupTLS(config.ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = SetupTLS(config.ServerConfig{TLS: &config.TLSConfig{}})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSetupTLS_AutoGenerate(t *testing.T) {
	dir := t.TempDir()
	srv := config.ServerConfig{TLS: &config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true}}
	c, err := SetupTLS(srv)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint16(cryptotls.VersionTLS13), c.MinVersion)

	for _, f := range []string{tlsCrt, tlsKey, tlsCaCrt} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
	cert, err := c.GetCertificate(&cryptotls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.Equal(t, []string{"routeplay"}, leaf.Subject.Organization)

	// second setup reuses the existing pair
	before, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	_, err = SetupTLS(srv)
	require.NoError(t, err)
	after, _ := os.ReadFile(filepath.Join(dir, tlsCrt))
	assert.Equal(t, before, after)
}

func TestSetupTLS_ExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	cp, kp := filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
	require.NoError(t, GenerateSelfSignedCert(CertConfig{
		CommonName: "api.test", Organization: "o", NotAfter: time.Now().Add(time.Hour),
		CertPath: cp, KeyPath: kp,
	}))
	c, err := SetupTLS(config.ServerConfig{
		TLSMinVersion: "1.2",
		TLS:           &config.TLSConfig{Enabled: true, CertFile: cp, KeyFile: kp},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(cryptotls.VersionTLS12), c.MinVersion)

	b, err := os.ReadFile(cp)
	require.NoError(t, err)
	blk, _ := pem.Decode(b)
	require.NotNil(t, blk)
	assert.Equal(t, "CERTIFICATE", blk.Type)

	st, err := os.Stat(kp)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestSetupTLS_Errors(t *testing.T) {
	_, err := SetupTLS(config.ServerConfig{TLS: &config.TLSConfig{Enabled: true}})
	assert.ErrorIs(t, err, ErrNoCertificate)

	_, err = SetupTLS(config.ServerConfig{TLS: &config.TLSConfig{Enabled: true, Dir: t.TempDir()}})
	assert.Error(t, err, "missing pair without auto_generate")

	_, err = SetupTLS(config.ServerConfig{TLSMinVersion: "1.0", TLS: &config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true}})
	assert.Error(t, err)

	_, err = SetupTLS(config.ServerConfig{TLSMinVersion: "1.3", TLSMaxVersion: "1.2", TLS: &config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true}})
	assert.Error(t, err)
}

func TestDevConfig(t *testing.T) {
	base := t.TempDir()
	c, err := DevConfig(base)
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.True(t, c.AutoGenerate)
	assert.Equal(t, filepath.Join(base, "tls"), c.Dir)
}
