package udap

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/castlink/castlink/pkg/core"
)

type channelEnvelopeXML struct {
	XMLName  xml.Name `xml:"envelope"`
	DataList struct {
		Data []channelDataXML `xml:"data"`
	} `xml:"dataList"`
}

type channelDataXML struct {
	ChannelType  string `xml:"chtype"`
	Major        int    `xml:"major"`
	Minor        int    `xml:"minor"`
	DisplayMajor int    `xml:"displayMajor"`
	DisplayMinor int    `xml:"displayMinor"`
	SourceIndex  int    `xml:"sourceIndex"`
	PhysicalNum  int    `xml:"physicalNum"`
	ChannelName  string `xml:"chname"`
	ProgramName  string `xml:"progName"`
}

// ParseChannelList decodes the channel_list data response into channel
// descriptors. The display number doubles as the channel id.
func ParseChannelList(body []byte) ([]core.ChannelInfo, error) {
	var doc channelEnvelopeXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &core.ParseError{Err: err}
	}
	channels := make([]core.ChannelInfo, 0, len(doc.DataList.Data))
	for _, d := range doc.DataList.Data {
		channels = append(channels, core.ChannelInfo{
			ID:          strconv.Itoa(d.DisplayMajor),
			Number:      strconv.Itoa(d.DisplayMajor),
			Name:        d.ChannelName,
			MajorNumber: d.DisplayMajor,
			MinorNumber: d.DisplayMinor,
			PhysicalNum: d.PhysicalNum,
			SourceIndex: d.SourceIndex,
		})
	}
	return channels, nil
}

// ParseCurrentChannel decodes the cur_channel data response. A response
// without any channel entry is a missing field error.
func ParseCurrentChannel(body []byte) (core.ChannelInfo, error) {
	channels, err := ParseChannelList(body)
	if err != nil {
		return core.ChannelInfo{}, err
	}
	if len(channels) == 0 {
		return core.ChannelInfo{}, core.MissingField("data")
	}
	return channels[0], nil
}

// ParseRawChannel decodes a JSON channel object as delivered through channel
// change events. Every named field must be present.
func ParseRawChannel(raw []byte) (core.ChannelInfo, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return core.ChannelInfo{}, &core.ParseError{Err: err}
	}
	var info core.ChannelInfo
	for _, f := range []struct {
		name string
		dst  any
	}{
		{"channelName", &info.Name},
		{"channelId", &info.ID},
		{"majorNumber", &info.MajorNumber},
		{"minorNumber", &info.MinorNumber},
	} {
		v, ok := fields[f.name]
		if !ok {
			return core.ChannelInfo{}, core.MissingField(f.name)
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return core.ChannelInfo{}, &core.ParseError{Field: f.name, Err: err}
		}
	}
	if v, ok := fields["channelNumber"]; ok {
		if err := json.Unmarshal(v, &info.Number); err != nil {
			return core.ChannelInfo{}, &core.ParseError{Field: "channelNumber", Err: err}
		}
	} else {
		info.Number = strconv.Itoa(info.MajorNumber) + "-" + strconv.Itoa(info.MinorNumber)
	}
	return info, nil
}

// ParseAppCount decodes an appnum_get response. A missing <number> element
// is a missing field error.
func ParseAppCount(body []byte) (int, error) {
	var value string
	var found bool
	err := scanLeaves(body, func(name, text string) bool {
		if name == "number" {
			value, found = text, true
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if !found || value == "" {
		return 0, core.MissingField("number")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &core.ParseError{Field: "number", Err: err}
	}
	return n, nil
}

// ParseAppList decodes an applist_get response. Entries without a name are
// dropped.
func ParseAppList(body []byte) ([]core.AppInfo, error) {
	var doc struct {
		XMLName  xml.Name `xml:"envelope"`
		DataList struct {
			Data []struct {
				AUID string `xml:"auid"`
				Name string `xml:"name"`
			} `xml:"data"`
		} `xml:"dataList"`
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &core.ParseError{Err: err}
	}
	var apps []core.AppInfo
	for _, d := range doc.DataList.Data {
		if d.Name == "" {
			continue
		}
		apps = append(apps, core.AppInfo{ID: d.AUID, Name: d.Name})
	}
	return apps, nil
}

// ParseVolumeStatus decodes a volume_info data response into mute state and
// a 0..100 level.
func ParseVolumeStatus(body []byte) (core.VolumeStatus, error) {
	var status core.VolumeStatus
	var sawLevel, sawMute bool
	err := scanLeaves(body, func(name, text string) bool {
		switch name {
		case "mute":
			status.Mute = strings.EqualFold(text, "true")
			sawMute = true
		case "level":
			if n, convErr := strconv.Atoi(text); convErr == nil {
				status.Volume = float64(n)
				sawLevel = true
			}
		}
		return false
	})
	if err != nil {
		return core.VolumeStatus{}, err
	}
	if !sawMute {
		return core.VolumeStatus{}, core.MissingField("mute")
	}
	if !sawLevel {
		return core.VolumeStatus{}, core.MissingField("level")
	}
	return status, nil
}

// ParseAppState maps an apptoapp status response body to running/visible
// flags. Unknown states report as neither running nor visible.
func ParseAppState(body string) core.AppState {
	switch strings.TrimSpace(body) {
	case "RUN_NF":
		return core.AppState{Running: true, Visible: false}
	case "LOAD", "TERM":
		return core.AppState{Running: false, Visible: true}
	default:
		return core.AppState{}
	}
}

// scanLeaves walks the document and offers every leaf element's local name
// and text content to visit. Returning true stops the scan.
func scanLeaves(body []byte, visit func(name, text string) bool) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var name string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &core.ParseError{Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name = t.Name.Local
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if name != "" && t.Name.Local == name {
				if visit(name, text.String()) {
					return nil
				}
			}
			name = ""
		}
	}
}
