package resolve

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	ips []net.IP
	err error
}

func (f fakeResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	return f.ips, f.err
}

func TestAddressesFiltersByFamily(t *testing.T) {
	r := fakeResolver{ips: []net.IP{
		net.ParseIP("192.0.2.1"),
		net.ParseIP("2001:db8::1"),
		net.ParseIP("192.0.2.2"),
	}}
	cases := []struct {
		name   string
		family Family
		want   int
	}{
		{"any", Any, 3},
		{"v4 only", V4Only, 2},
		{"v6 only", V6Only, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Addresses(context.Background(), r, "example.com", c.family)
			if err != nil {
				t.Fatalf("Addresses: %v", err)
			}
			if len(got) != c.want {
				t.Errorf("len(Addresses) = %d, want %d", len(got), c.want)
			}
		})
	}
}

func TestAddressesNoMatchIsError(t *testing.T) {
	r := fakeResolver{ips: []net.IP{net.ParseIP("192.0.2.1")}}
	if _, err := Addresses(context.Background(), r, "example.com", V6Only); err == nil {
		t.Error("Addresses with no matching family: want error, got nil")
	}
}

func TestAddressesPreservesOrder(t *testing.T) {
	want := []net.IP{net.ParseIP("192.0.2.1"), net.ParseIP("192.0.2.2")}
	r := fakeResolver{ips: want}
	got, err := Addresses(context.Background(), r, "example.com", Any)
	if err != nil {
		t.Fatalf("Addresses: %v", err)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("Addresses[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
