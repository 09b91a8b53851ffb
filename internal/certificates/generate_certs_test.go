package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLoadsAsKeyPair(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	require.NoError(t, Generate(certFile, keyFile, []string{"localhost", "127.0.0.1", "short.example"}))

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"localhost", "short.example"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())
	assert.NoError(t, cert.VerifyHostname("short.example"))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsure(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	assert.False(t, FilesExist(certFile, keyFile))

	created, err := Ensure(certFile, keyFile, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, FilesExist(certFile, keyFile))

	before, err := os.ReadFile(certFile)
	require.NoError(t, err)

	created, err = Ensure(certFile, keyFile, nil)
	require.NoError(t, err)
	assert.False(t, created)

	after, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing pair is kept")
}

func TestGenerateUnwritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	err := Generate(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"), nil)
	assert.Error(t, err)
}
