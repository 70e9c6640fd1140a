package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/muurk/nodelink/internal/store"
)

func setSeedFlags(t *testing.T, apSSID, apPass, host, hostPass, ssid, pass string) {
	t.Helper()
	seedAPSSID, seedAPPassword = apSSID, apPass
	seedUpdateHost, seedUpdatePass = host, hostPass
	seedNetworkSSID, seedNetworkPass = ssid, pass
	t.Cleanup(func() {
		seedAPSSID, seedAPPassword, seedUpdateHost, seedUpdatePass, seedNetworkSSID, seedNetworkPass = "", "", "", "", "", ""
	})
}

func TestSeedPairs(t *testing.T) {
	tests := []struct {
		name           string
		flags          [6]string
		wantNamespaces []string
		wantErr        string
	}{
		{
			name:           "access point only",
			flags:          [6]string{"nodelink-setup", "setup-pass", "", "", "", ""},
			wantNamespaces: []string{store.NamespaceProvisioningAP},
		},
		{
			name:           "all pairs",
			flags:          [6]string{"nodelink-setup", "setup-pass", "node-1", "update-pass", "homenet", "x"},
			wantNamespaces: []string{store.NamespaceProvisioningAP, store.NamespaceUpdateChannel, store.NamespaceNetwork},
		},
		{
			name:    "short access point password",
			flags:   [6]string{"nodelink-setup", "short", "", "", "", ""},
			wantErr: "at least 8 characters",
		},
		{
			name:    "short update password",
			flags:   [6]string{"", "", "node-1", "1234567", "", ""},
			wantErr: "at least 8 characters",
		},
		{
			name:    "half a pair",
			flags:   [6]string{"", "", "", "", "homenet", ""},
			wantErr: "needs both",
		},
		{
			name:    "nothing",
			wantErr: "nothing to write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.flags
			setSeedFlags(t, f[0], f[1], f[2], f[3], f[4], f[5])

			pairs, err := seedPairs()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("seedPairs() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("seedPairs() error = %v", err)
			}
			if len(pairs) != len(tt.wantNamespaces) {
				t.Fatalf("seedPairs() returned %d pairs, want %d", len(pairs), len(tt.wantNamespaces))
			}
			for i, p := range pairs {
				if p.namespace != tt.wantNamespaces[i] {
					t.Errorf("pair %d namespace = %q, want %q", i, p.namespace, tt.wantNamespaces[i])
				}
			}
		})
	}
}

func TestWriteSeeds(t *testing.T) {
	setSeedFlags(t, "nodelink-setup", "setup-pass", "node-1", "update-pass", "", "")
	pairs, err := seedPairs()
	if err != nil {
		t.Fatalf("seedPairs() error = %v", err)
	}

	st := store.NewMemory()
	if err := writeSeeds(st, pairs); err != nil {
		t.Fatalf("writeSeeds() error = %v", err)
	}

	ssid, pw, _ := st.GetPair(store.NamespaceProvisioningAP, store.KeySSID, store.KeyPassword, "", "")
	if ssid != "nodelink-setup" || pw != "setup-pass" {
		t.Errorf("access point pair = %q/%q", ssid, pw)
	}
	host, pw, _ := st.GetPair(store.NamespaceUpdateChannel, store.KeyHostName, store.KeyPassword, "", "")
	if host != "node-1" || pw != "update-pass" {
		t.Errorf("update pair = %q/%q", host, pw)
	}
	if st.Has(store.NamespaceNetwork) {
		t.Error("network namespace written without flags")
	}
}

func TestWriteSeeds_StoreFailure(t *testing.T) {
	setSeedFlags(t, "", "", "", "", "homenet", "secretpw")
	pairs, err := seedPairs()
	if err != nil {
		t.Fatalf("seedPairs() error = %v", err)
	}

	st := store.NewMemory()
	st.FailWrites = errors.New("read-only")
	err = writeSeeds(st, pairs)
	if err == nil || !strings.Contains(err.Error(), store.NamespaceNetwork) {
		t.Fatalf("writeSeeds() error = %v, want network failure", err)
	}
}
