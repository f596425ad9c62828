package target

import (
	"testing"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		opts     Options
		wantProt Protocol
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "ipv4 literal", input: "192.0.2.1", wantProt: ICMP, wantHost: "192.0.2.1"},
		{name: "ipv6 literal", input: "::1", wantProt: ICMP, wantHost: "::1"},
		{name: "bare hostname", input: "example.com", wantProt: ICMP, wantHost: "example.com"},
		{name: "host colon port", input: "example.com:80", wantProt: TCP, wantHost: "example.com", wantPort: 80},
		{name: "bracketed ipv6 colon port", input: "[::1]:22", wantProt: TCP, wantHost: "::1", wantPort: 22},
		{name: "http url", input: "http://example.com/", wantProt: HTTP, wantHost: "example.com", wantPort: 80},
		{name: "https url default port", input: "https://example.com", wantProt: HTTP, wantHost: "example.com", wantPort: 443},
		{name: "https url explicit port", input: "https://example.com:8443", wantProt: HTTP, wantHost: "example.com", wantPort: 8443},
		{
			name:     "force tcp on bare host errors without port",
			input:    "example.com",
			opts:     Options{ForceTCP: true},
			wantErr:  true,
		},
		{
			name:     "force tcp with port",
			input:    "example.com:9000",
			opts:     Options{ForceTCP: true},
			wantProt: TCP, wantHost: "example.com", wantPort: 9000,
		},
		{
			name:     "force http adds scheme",
			input:    "example.com",
			opts:     Options{ForceHTTP: true},
			wantProt: HTTP, wantHost: "example.com", wantPort: 80,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Detect(c.input, c.opts)
			if c.wantErr {
				if err == nil {
					t.Fatal("Detect: want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got.Protocol != c.wantProt {
				t.Errorf("Protocol = %v, want %v", got.Protocol, c.wantProt)
			}
			if got.Host != c.wantHost {
				t.Errorf("Host = %q, want %q", got.Host, c.wantHost)
			}
			if c.wantPort != 0 && got.Port != c.wantPort {
				t.Errorf("Port = %d, want %d", got.Port, c.wantPort)
			}
		})
	}
}
