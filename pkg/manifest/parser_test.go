package manifest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func certPayload(t *testing.T, notAfter time.Time, serial int64) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "svc"},
		NotBefore:    notAfter.AddDate(-1, 0, 0),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "CertStore.xml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0640))
	return path
}

func TestParseFiltersByExpiryWindow(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	soon := certPayload(t, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), 0xAB12)
	far := certPayload(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), 0xCD34)

	dir := t.TempDir()
	path := writeManifest(t, dir, fmt.Sprintf(`<?xml version="1.0"?>
<configuration>
  <entity type="Certificate"><node name="content"><value>%s</value></node></entity>
  <entity type="Certificate"><node name="content"><value>%s</value></node></entity>
</configuration>`, soon, far))

	result, err := Parse(path, dir, today)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Decoded, "both certificates pay the decode cost")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "AB12", result.Records[0].Serial)
	assert.Empty(t, result.Skips)
}

func TestParseIgnoresNonCertificateEntities(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	path := writeManifest(t, dir, `<?xml version="1.0"?>
<configuration>
  <entity type="Policy"><node name="content"><value>bm90IGEgY2VydA==</value></node></entity>
  <entity type="KeyPair"><node name="content"><value>bm90IGEgY2VydA==</value></node></entity>
</configuration>`)

	result, err := Parse(path, dir, today)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Skips)
	assert.Zero(t, result.Decoded)
}

func TestParseSkipsMalformedEntities(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	soon := certPayload(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 0x11)

	dir := t.TempDir()
	path := writeManifest(t, dir, fmt.Sprintf(`<?xml version="1.0"?>
<configuration>
  <entity type="Certificate"><node name="owner">ops</node></entity>
  <entity type="Certificate"><node name="content"><value>!!not-base64!!</value></node></entity>
  <entity type="Certificate"><node name="content"><value>%s</value></node></entity>
</configuration>`, soon))

	result, err := Parse(path, dir, today)
	require.NoError(t, err)

	require.Len(t, result.Records, 1, "good entity survives malformed neighbors")
	assert.Equal(t, "11", result.Records[0].Serial)
	assert.Len(t, result.Skips, 2)
}

func TestParseContentAsDirectText(t *testing.T) {
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	soon := certPayload(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 0x22)

	dir := t.TempDir()
	path := writeManifest(t, dir, fmt.Sprintf(`<?xml version="1.0"?>
<configuration>
  <entity type="Certificate"><node name="content">%s</node></entity>
</configuration>`, soon))

	result, err := Parse(path, dir, today)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "22", result.Records[0].Serial)
}

func TestParseMalformedXML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `<configuration><entity`)

	_, err := Parse(path, dir, time.Now())
	assert.Error(t, err)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "CertStore.xml"), t.TempDir(), time.Now())
	assert.Error(t, err)
}
