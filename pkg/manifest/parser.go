// Package manifest walks certificate store manifests and extracts the
// embedded certificate payloads.
package manifest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
)

const (
	entityElement   = "entity"
	typeAttr        = "type"
	certificateType = "Certificate"
	nameAttr        = "name"
	contentName     = "content"
)

// Skip records one certificate entity that could not be processed.
// Per-entity failure never aborts the manifest scan.
type Skip struct {
	Entity int
	Reason string
}

// Result is the outcome of one manifest scan.
type Result struct {
	// Records holds the certificates inside the reporting window, in
	// manifest order.
	Records []certs.Record
	// Skips lists entities that could not be processed.
	Skips []Skip
	// Decoded counts every successfully decoded certificate, including the
	// ones outside the window.
	Decoded int
}

// Parse scans a manifest for Certificate entities, decodes each embedded
// payload through the scratch directory and keeps the records whose expiry
// falls within the reporting window relative to today.
//
// Certificates outside the window are decoded and discarded: notAfter is only
// known after the decode, so there is no cheaper signal to pre-filter on.
func Parse(manifestPath, scratchDir string, today time.Time) (Result, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return Result{}, fmt.Errorf("manifest: open %s: %w", manifestPath, err)
	}
	defer f.Close()
	return parse(f, scratchDir, today)
}

func parse(r io.Reader, scratchDir string, today time.Time) (Result, error) {
	decoder := xml.NewDecoder(r)

	var result Result
	entityIndex := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("manifest: malformed XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != entityElement {
			continue
		}
		entityIndex++
		if attrValue(start, typeAttr) != certificateType {
			continue
		}

		var ent entity
		if err := decoder.DecodeElement(&ent, &start); err != nil {
			result.Skips = append(result.Skips, Skip{Entity: entityIndex, Reason: fmt.Sprintf("unreadable entity: %v", err)})
			continue
		}

		payload, found := ent.contentPayload()
		if !found {
			result.Skips = append(result.Skips, Skip{Entity: entityIndex, Reason: "no content node"})
			continue
		}

		record, err := certs.DecodePayload(payload, scratchDir)
		if err != nil {
			result.Skips = append(result.Skips, Skip{Entity: entityIndex, Reason: err.Error()})
			continue
		}

		result.Decoded++
		if expiry.ExpiringSoon(today, record.NotAfter) {
			result.Records = append(result.Records, record)
		}
	}

	return result, nil
}

// entity mirrors one manifest entity element. Child layout varies between
// store versions; payloads appear either as nested value elements or as
// direct character data of the content node.
type entity struct {
	Nodes []node `xml:",any"`
}

type node struct {
	Name     string  `xml:"name,attr"`
	Text     string  `xml:",chardata"`
	Children []child `xml:",any"`
}

type child struct {
	Text string `xml:",chardata"`
}

func (e entity) contentPayload() (string, bool) {
	for _, n := range e.Nodes {
		if n.Name != contentName {
			continue
		}
		for _, c := range n.Children {
			if strings.TrimSpace(c.Text) != "" {
				return c.Text, true
			}
		}
		if strings.TrimSpace(n.Text) != "" {
			return n.Text, true
		}
		return "", false
	}
	return "", false
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}
