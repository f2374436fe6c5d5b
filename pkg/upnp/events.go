package upnp

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/castlink/castlink/pkg/core"
)

type propertySetXML struct {
	XMLName    xml.Name `xml:"propertyset"`
	Properties []struct {
		Inner []rawProperty `xml:",any"`
	} `xml:"property"`
}

type rawProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ParsePropertySet decodes a UPnP event NOTIFY body into property name →
// value pairs.
func ParsePropertySet(body []byte) (map[string]string, error) {
	var doc propertySetXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &core.ParseError{Err: err}
	}
	out := make(map[string]string)
	for _, p := range doc.Properties {
		for _, raw := range p.Inner {
			out[raw.XMLName.Local] = raw.Value
		}
	}
	return out, nil
}

// LastChangeValue digs the val attribute of the named element out of an
// AVTransport/RenderingControl LastChange payload. The payload arrives
// XML-escaped inside the property set.
func LastChangeValue(lastChange, element string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(lastChange))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != element {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "val" {
				return attr.Value, nil
			}
		}
	}
	return "", core.MissingField(element)
}

// ParseClockTime parses the "H:MM:SS" clock values used by AVTransport for
// positions and durations.
func ParseClockTime(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, core.MissingField("clock time")
	}
	var total time.Duration
	for _, part := range parts {
		// Fractional seconds ("00:00:01.500") are truncated.
		if idx := strings.IndexByte(part, '.'); idx >= 0 {
			part = part[:idx]
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, &core.ParseError{Err: err}
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}

// FormatClockTime renders a duration as the "H:MM:SS" clock value used in
// Seek targets.
func FormatClockTime(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
