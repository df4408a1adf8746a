package aquos

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"aquos/internal"
)

// Simulator is an in-memory Transport that answers like a television.
// It backs the --test mode of the commands and the tests of other packages.
type Simulator struct {
	mu       sync.Mutex
	identity DeviceIdentity
	channels []Channel
	commands []RemoteCode
	failures map[RemoteCode]int
}

// NewSimulator returns a simulator with a sample identity and three channels.
func NewSimulator() *Simulator {
	return &Simulator{
		identity: DeviceIdentity{
			FriendlyName: "AQUOS Simulator",
			Manufacturer: "Sharp Corporation",
			ModelName:    "4T-C50BN1",
			UDN:          "uuid:00000000-0000-1000-8000-000000000001",
		},
		channels: []Channel{
			{RemoteControlNumber: "1", Name: "NHK総合", ChannelNumber: "011", Skip: "0", EventTitle: "ニュース", Command: "DTVD0011"},
			{RemoteControlNumber: "2", Name: "NHK Eテレ", ChannelNumber: "021", Skip: "0", EventTitle: "", Command: "DTVD0021"},
			{RemoteControlNumber: "4", Name: "日本テレビ", ChannelNumber: "041", Skip: "1", EventTitle: "", Command: "DTVD0041"},
		},
		failures: make(map[RemoteCode]int),
	}
}

// NewTransport picks the simulator in test mode and HTTP otherwise.
func NewTransport(opts *internal.FnModeOptions, timeout time.Duration) Transport {
	if opts != nil && opts.Test {
		return NewSimulator()
	}
	return NewHTTPTransport(timeout)
}

// SetChannels replaces the channel list served to EnumerateChannels.
func (s *Simulator) SetChannels(channels []Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append([]Channel(nil), channels...)
}

// FailCommand makes the next n sends of code fail with HTTP 500.
func (s *Simulator) FailCommand(code RemoteCode, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[code] = n
}

// Commands returns the codes received so far, in order.
func (s *Simulator) Commands() []RemoteCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RemoteCode(nil), s.commands...)
}

func (s *Simulator) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: http.MethodGet, URL: url, Err: err}
	}
	if !strings.HasSuffix(url, DescriptionPath) {
		return nil, &TransportError{Op: http.MethodGet, URL: url, Status: http.StatusNotFound}
	}

	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	return DescriptionDocument(identity)
}

func (s *Simulator) Post(ctx context.Context, url string, action Action, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: url, Err: err}
	}

	switch action {
	case ActionGetStatus:
		s.mu.Lock()
		channels := append([]Channel(nil), s.channels...)
		s.mu.Unlock()
		return StatusResponse(channels)

	case ActionSetControl:
		code, err := requestField(body, "Command")
		if err != nil {
			return nil, &TransportError{Op: http.MethodPost, URL: url, Status: http.StatusBadRequest, Err: err}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failures[RemoteCode(code)] > 0 {
			s.failures[RemoteCode(code)]--
			return nil, &TransportError{Op: http.MethodPost, URL: url, Status: http.StatusInternalServerError}
		}
		s.commands = append(s.commands, RemoteCode(code))
		return []byte(`<?xml version="1.0" encoding="utf-8"?><s:Envelope xmlns:s="` + soapEnvelopeNamespace + `"><s:Body/></s:Envelope>`), nil
	}

	return nil, &TransportError{Op: http.MethodPost, URL: url, Status: http.StatusNotImplemented}
}

// requestField extracts the text of the first element called name.
func requestField(body []byte, name string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("no %s element: %w", name, err)
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == name {
			var value string
			if err := dec.DecodeElement(&value, &start); err != nil {
				return "", err
			}
			return value, nil
		}
	}
}

type descriptionDocument struct {
	XMLName xml.Name `xml:"urn:schemas-upnp-org:device-1-0 root"`
	Device  struct {
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// DescriptionDocument renders a device description for identity.
func DescriptionDocument(identity DeviceIdentity) ([]byte, error) {
	var doc descriptionDocument
	doc.Device.FriendlyName = identity.FriendlyName
	doc.Device.Manufacturer = identity.Manufacturer
	doc.Device.ModelName = identity.ModelName
	doc.Device.UDN = identity.UDN

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render description: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type channelRecord struct {
	RcNumber   string `xml:"RcNumber"`
	Name       string `xml:"Name"`
	ChNumber   string `xml:"ChNumber"`
	Skip       string `xml:"Skip"`
	EventTitle string `xml:"EventTitle"`
	Command    string `xml:"Command"`
}

type channelDocument struct {
	XMLName  xml.Name        `xml:"ChList"`
	Channels []channelRecord `xml:"Ch"`
}

// StatusResponse renders an X_GetTvStatusResponse carrying channels as an
// escaped ChList document.
func StatusResponse(channels []Channel) ([]byte, error) {
	var doc channelDocument
	for _, ch := range channels {
		doc.Channels = append(doc.Channels, channelRecord{
			RcNumber:   ch.RemoteControlNumber,
			Name:       ch.Name,
			ChNumber:   ch.ChannelNumber,
			Skip:       ch.Skip,
			EventTitle: ch.EventTitle,
			Command:    string(ch.Command),
		})
	}

	inner, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render channel list: %w", err)
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, append([]byte(xml.Header), inner...)); err != nil {
		return nil, fmt.Errorf("failed to escape channel list: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<s:Envelope xmlns:s="` + soapEnvelopeNamespace + `" s:encodingStyle="` + soapEncodingStyle + `">`)
	buf.WriteString(`<s:Body><u:X_GetTvStatusResponse xmlns:u="` + ServiceNamespace + `"><Result>`)
	buf.Write(escaped.Bytes())
	buf.WriteString(`</Result></u:X_GetTvStatusResponse></s:Body></s:Envelope>`)
	return buf.Bytes(), nil
}
