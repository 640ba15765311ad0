package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVersion(t *testing.T) {
	var stdout, stderr strings.Builder
	code := Run([]string{"certscan", "version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "certscan")
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr strings.Builder
	code := Run([]string{"certscan", "help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr strings.Builder
	code := Run([]string{"certscan", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRunCheckPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(0xAB12),
		Subject:      pkix.Name{CommonName: "svc"},
		NotBefore:    time.Date(2023, 3, 10, 12, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0640))

	var stdout, stderr strings.Builder
	code := Run([]string{"certscan", "check", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Serial:    AB12")
}

func TestRunCheckMissingArgument(t *testing.T) {
	var stdout, stderr strings.Builder
	code := Run([]string{"certscan", "check"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}
