package upnp

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/castlink/castlink/pkg/core"
)

type descriptionXML struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		ModelNumber  string `xml:"modelNumber"`
		UDN          string `xml:"UDN"`
		Services     []struct {
			ServiceType string `xml:"serviceType"`
			ServiceID   string `xml:"serviceId"`
			ControlURL  string `xml:"controlURL"`
			EventSubURL string `xml:"eventSubURL"`
		} `xml:"serviceList>service"`
	} `xml:"device"`
	URLBase string `xml:"URLBase"`
}

// FetchDescription retrieves and parses the device description document at
// location, returning an immutable ServiceDescription snapshot.
func FetchDescription(client *http.Client, location string) (*core.ServiceDescription, error) {
	resp, err := client.Get(location)
	if err != nil {
		return nil, &core.TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.ErrorForStatus(resp.StatusCode)
	}

	var doc descriptionXML
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &core.ParseError{Err: err}
	}

	return buildDescription(location, &doc)
}

func buildDescription(location string, doc *descriptionXML) (*core.ServiceDescription, error) {
	base, err := url.Parse(location)
	if err != nil {
		return nil, &core.ParseError{Err: fmt.Errorf("bad location url: %w", err)}
	}
	if doc.URLBase != "" {
		if u, err := url.Parse(doc.URLBase); err == nil {
			base = u
		}
	}

	host := base.Hostname()
	port := 80
	if p := base.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}

	uuid, _ := splitUDN(doc.Device.UDN)

	desc := &core.ServiceDescription{
		UUID:         uuid,
		FriendlyName: doc.Device.FriendlyName,
		Manufacturer: doc.Device.Manufacturer,
		ModelName:    doc.Device.ModelName,
		ModelNumber:  doc.Device.ModelNumber,
		IPAddress:    host,
		Port:         port,
		LocationURL:  location,
	}

	baseURL := fmt.Sprintf("%s://%s", base.Scheme, base.Host)
	for _, s := range doc.Device.Services {
		desc.Services = append(desc.Services, core.EmbeddedService{
			Type:        s.ServiceType,
			ID:          s.ServiceID,
			BaseURL:     baseURL + "/",
			ControlURL:  s.ControlURL,
			EventSubURL: s.EventSubURL,
		})
	}

	return desc, nil
}

func splitUDN(udn string) (uuid, rest string) {
	const prefix = "uuid:"
	if len(udn) > len(prefix) && udn[:len(prefix)] == prefix {
		udn = udn[len(prefix):]
	}
	for i := 0; i+1 < len(udn); i++ {
		if udn[i] == ':' && udn[i+1] == ':' {
			return udn[:i], udn[i+2:]
		}
	}
	return udn, ""
}
