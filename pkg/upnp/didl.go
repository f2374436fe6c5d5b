package upnp

import (
	"fmt"
	"strings"

	"github.com/castlink/castlink/pkg/core"
)

// Metadata renders the DIDL-Lite document describing a media item for
// SetAVTransportURI. The object class follows the MIME type prefix.
func Metadata(info core.MediaInfo) string {
	objectClass := ""
	switch {
	case strings.HasPrefix(info.MimeType, "image"):
		objectClass = "object.item.imageItem"
	case strings.HasPrefix(info.MimeType, "video"):
		objectClass = "object.item.videoItem"
	case strings.HasPrefix(info.MimeType, "audio"):
		objectClass = "object.item.audioItem"
	}

	var sb strings.Builder
	sb.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" `)
	sb.WriteString(`xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" `)
	sb.WriteString(`xmlns:dc="http://purl.org/dc/elements/1.1/">`)
	sb.WriteString(`<item id="1000" parentID="0" restricted="0">`)
	fmt.Fprintf(&sb, "<dc:title>%s</dc:title>", Escape(info.Title))
	fmt.Fprintf(&sb, "<dc:description>%s</dc:description>", Escape(info.Description))
	fmt.Fprintf(&sb, `<res protocolInfo="http-get:*:%s:DLNA.ORG_OP=01">%s</res>`,
		Escape(info.MimeType), Escape(info.URL))
	fmt.Fprintf(&sb, "<upnp:albumArtURI>%s</upnp:albumArtURI>", Escape(info.IconURL))
	fmt.Fprintf(&sb, "<upnp:class>%s</upnp:class>", objectClass)
	sb.WriteString("</item>")
	sb.WriteString("</DIDL-Lite>")
	return sb.String()
}

// NormalizeMimeType applies the renderer quirk of the original protocol:
// audio/mp3 is advertised as audio/mpeg. Invalid "type/format" strings
// yield an error.
func NormalizeMimeType(mimeType string) (string, error) {
	parts := strings.SplitN(mimeType, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", &core.ParseError{Err: fmt.Errorf("invalid mime type %q", mimeType)}
	}
	if parts[1] == "mp3" {
		parts[1] = "mpeg"
	}
	return parts[0] + "/" + parts[1], nil
}
