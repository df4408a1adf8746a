package aquos

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
)

// Field is a single child element of the action body.
type Field struct {
	Name  string
	Value string
}

// Fields keeps body elements in the order they are written.
type Fields []Field

// Command returns the field set of a single X_SetControlCommand.
func Command(code RemoteCode) Fields {
	return Fields{{Name: "Command", Value: string(code)}}
}

// Codec builds and parses the SOAP envelopes of the X_IPcontrol service.
// The zero value sends empty ID and Pass fields.
type Codec struct {
	Credentials Credentials
}

// Encode writes an envelope for action. The fields are emitted in order,
// followed by the ID and Pass fields.
func (c Codec) Encode(action Action, fields Fields) ([]byte, error) {
	if !validElementName(string(action)) {
		return nil, fmt.Errorf("invalid action name %q", action)
	}
	for _, f := range fields {
		if !validElementName(f.Name) {
			return nil, fmt.Errorf("invalid field name %q", f.Name)
		}
		if f.Name == "ID" || f.Name == "Pass" {
			return nil, fmt.Errorf("field %s is reserved for credentials", f.Name)
		}
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	envelope := xml.StartElement{
		Name: xml.Name{Local: "s:Envelope"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:s"}, Value: soapEnvelopeNamespace},
			{Name: xml.Name{Local: "s:encodingStyle"}, Value: soapEncodingStyle},
		},
	}
	body := xml.StartElement{Name: xml.Name{Local: "s:Body"}}
	call := xml.StartElement{
		Name: xml.Name{Local: "u:" + string(action)},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:u"}, Value: ServiceNamespace}},
	}

	tokens := []xml.Token{
		xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="utf-8"`)},
		envelope, body, call,
	}
	all := append(append(Fields{}, fields...),
		Field{Name: "ID", Value: c.Credentials.ID},
		Field{Name: "Pass", Value: c.Credentials.Pass},
	)
	for _, f := range all {
		start := xml.StartElement{Name: xml.Name{Local: f.Name}}
		tokens = append(tokens, start, xml.CharData(f.Value), start.End())
	}
	tokens = append(tokens, call.End(), body.End(), envelope.End())

	for _, tok := range tokens {
		if err := enc.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("failed to encode envelope: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return buf.Bytes(), nil
}

func validElementName(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

type statusEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    *struct {
		Response *struct {
			Result *string `xml:"Result"`
		} `xml:"X_GetTvStatusResponse"`
	} `xml:"Body"`
}

type channelList struct {
	XMLName  xml.Name       `xml:"ChList"`
	Channels []channelEntry `xml:"Ch"`
}

type channelEntry struct {
	RcNumber   *string `xml:"RcNumber"`
	Name       *string `xml:"Name"`
	ChNumber   *string `xml:"ChNumber"`
	Skip       *string `xml:"Skip"`
	EventTitle *string `xml:"EventTitle"`
	Command    *string `xml:"Command"`
}

// DecodeChannelList parses an X_GetTvStatusResponse. The Result element
// carries an escaped ChList document, so the body is parsed twice.
// Channels are returned in document order, skipped ones included.
func (Codec) DecodeChannelList(data []byte) ([]Channel, error) {
	var env statusEnvelope
	if err := newDecoder(bytes.NewReader(data), charset.NewReaderLabel).Decode(&env); err != nil {
		return nil, malformed("status envelope: %v", err)
	}
	if env.Body == nil {
		return nil, malformed("status envelope has no Body")
	}
	if env.Body.Response == nil {
		return nil, malformed("status envelope has no X_GetTvStatusResponse")
	}
	if env.Body.Response.Result == nil {
		return nil, malformed("status response has no Result")
	}

	// The embedded document is already UTF-8 text whatever its declaration says.
	var list channelList
	inner := newDecoder(strings.NewReader(*env.Body.Response.Result), passthroughCharset)
	if err := inner.Decode(&list); err != nil {
		return nil, malformed("channel list: %v", err)
	}

	channels := make([]Channel, 0, len(list.Channels))
	for i, ch := range list.Channels {
		missing := missingFields(map[string]*string{
			"RcNumber":   ch.RcNumber,
			"Name":       ch.Name,
			"ChNumber":   ch.ChNumber,
			"Skip":       ch.Skip,
			"EventTitle": ch.EventTitle,
			"Command":    ch.Command,
		})
		if len(missing) > 0 {
			return nil, malformed("channel %d is missing %s", i, strings.Join(missing, ", "))
		}
		channels = append(channels, Channel{
			RemoteControlNumber: strings.TrimSpace(*ch.RcNumber),
			Name:                strings.TrimSpace(*ch.Name),
			ChannelNumber:       strings.TrimSpace(*ch.ChNumber),
			Skip:                strings.TrimSpace(*ch.Skip),
			EventTitle:          strings.TrimSpace(*ch.EventTitle),
			Command:             RemoteCode(strings.TrimSpace(*ch.Command)),
		})
	}

	return channels, nil
}

type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	Device  *struct {
		FriendlyName *string `xml:"friendlyName"`
		Manufacturer *string `xml:"manufacturer"`
		ModelName    *string `xml:"modelName"`
		UDN          *string `xml:"UDN"`
	} `xml:"device"`
}

// DecodeDeviceDescription parses the UPnP device description document.
func (Codec) DecodeDeviceDescription(data []byte) (DeviceIdentity, error) {
	var desc deviceDescription
	if err := newDecoder(bytes.NewReader(data), charset.NewReaderLabel).Decode(&desc); err != nil {
		return DeviceIdentity{}, malformed("device description: %v", err)
	}
	if desc.Device == nil {
		return DeviceIdentity{}, malformed("device description has no device element")
	}

	d := desc.Device
	missing := missingFields(map[string]*string{
		"friendlyName": d.FriendlyName,
		"manufacturer": d.Manufacturer,
		"modelName":    d.ModelName,
		"UDN":          d.UDN,
	})
	if len(missing) > 0 {
		return DeviceIdentity{}, malformed("device description is missing %s", strings.Join(missing, ", "))
	}

	return DeviceIdentity{
		FriendlyName: strings.TrimSpace(*d.FriendlyName),
		Manufacturer: strings.TrimSpace(*d.Manufacturer),
		ModelName:    strings.TrimSpace(*d.ModelName),
		UDN:          strings.TrimSpace(*d.UDN),
	}, nil
}

func newDecoder(r io.Reader, cs func(string, io.Reader) (io.Reader, error)) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = cs
	return dec
}

func passthroughCharset(_ string, r io.Reader) (io.Reader, error) {
	return r, nil
}

// missingFields returns the sorted names whose value is nil.
func missingFields(fields map[string]*string) []string {
	var missing []string
	for name, v := range fields {
		if v == nil {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
