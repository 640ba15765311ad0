// Package certs decodes base64 certificate payloads extracted from
// configuration manifests into flat, comparable records.
package certs

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrCertificateDecode is returned when a payload is not valid PEM/X.509.
var ErrCertificateDecode = errors.New("certs: payload is not a valid PEM/X.509 certificate")

// TimestampLayout is the rendering used for validity timestamps in reports
// and ticket bodies.
const TimestampLayout = "2006-01-02 15:04:05"

// PEMFileName is the scratch file the decoder round-trips payloads through.
const PEMFileName = "cert_file.pem"

const (
	pemHeader = "-----BEGIN CERTIFICATE-----"
	pemFooter = "-----END CERTIFICATE-----"
)

// Record is the decoded view of one embedded certificate.
// Immutable once produced.
type Record struct {
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
}

// EndDate renders the expiry timestamp in the fixed report layout.
func (r Record) EndDate() string {
	return r.NotAfter.Format(TimestampLayout)
}

// WritePEM normalizes a base64 certificate body and writes it to the scratch
// directory as a PEM file. The body may be newline-wrapped; carriage returns
// and newlines are stripped before armoring.
func WritePEM(content, scratchDir string) (string, error) {
	body := strings.ReplaceAll(content, "\n", "")
	body = strings.ReplaceAll(body, "\r", "")
	body = strings.TrimSpace(body)

	path := filepath.Join(scratchDir, PEMFileName)
	data := pemHeader + "\n" + body + "\n" + pemFooter + "\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		return "", fmt.Errorf("certs: write pem file: %w", err)
	}
	return path, nil
}

// DecodeFile parses a PEM file previously produced by WritePEM.
func DecodeFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("certs: read pem file: %w", err)
	}
	return Decode(data)
}

// Decode parses PEM-armored certificate bytes into a Record.
//
// Both validity timestamps are shifted forward by one hour. The upstream
// store encodes notBefore/notAfter one hour behind the wall clock of the
// issuing system; the shift compensates for that and must be preserved for
// ledger compatibility.
func Decode(data []byte) (Record, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return Record{}, fmt.Errorf("%w: no CERTIFICATE block", ErrCertificateDecode)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCertificateDecode, err)
	}

	return Record{
		NotBefore: cert.NotBefore.Add(time.Hour),
		NotAfter:  cert.NotAfter.Add(time.Hour),
		Issuer:    renderSubject(cert.Subject),
		Serial:    fmt.Sprintf("%X", cert.SerialNumber),
	}, nil
}

// DecodePayload writes a raw base64 body to the scratch directory and decodes
// it in one step.
func DecodePayload(content, scratchDir string) (Record, error) {
	path, err := WritePEM(content, scratchDir)
	if err != nil {
		return Record{}, err
	}
	return DecodeFile(path)
}

var attrShortNames = map[string]string{
	"2.5.4.3":              "CN",
	"2.5.4.5":              "serialNumber",
	"2.5.4.6":              "C",
	"2.5.4.7":              "L",
	"2.5.4.8":              "ST",
	"2.5.4.9":              "street",
	"2.5.4.10":             "O",
	"2.5.4.11":             "OU",
	"2.5.4.17":             "postalCode",
	"1.2.840.113549.1.9.1": "emailAddress",
	"0.9.2342.19200300.100.1.25": "DC",
}

// renderSubject joins all subject components as key=value pairs in the order
// they appear in the certificate.
func renderSubject(subject pkix.Name) string {
	parts := make([]string, 0, len(subject.Names))
	for _, attr := range subject.Names {
		key := attr.Type.String()
		if short, ok := attrShortNames[key]; ok {
			key = short
		}
		parts = append(parts, fmt.Sprintf("%s=%v", key, attr.Value))
	}
	return strings.Join(parts, ", ")
}
