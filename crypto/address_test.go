package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, AddressLength)
	addr := NewAddress(AccountPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) || decoded.Prefix() != AccountPrefix {
		t.Fatalf("round trip mismatch: got %s want %s", decoded, addr)
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("pool/USDC-123456")
	b := ModuleAddress("pool/USDC-123456")
	c := ModuleAddress("pool/WEGLD-123456")
	if !a.Equal(b) {
		t.Fatalf("expected identical derivation")
	}
	if a.Equal(c) {
		t.Fatalf("expected distinct pool identities")
	}
	if a.IsZero() {
		t.Fatalf("derived address must not be zero")
	}
}

func TestZeroAddress(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatalf("empty address must be zero")
	}
	if !NewAddress(AccountPrefix, make([]byte, AddressLength)).IsZero() {
		t.Fatalf("all-zero bytes must be zero")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}
