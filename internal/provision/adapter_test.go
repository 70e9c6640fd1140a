package provision

import (
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Request
		wantErr bool
	}{
		{
			name:  "credentials",
			input: `{"ssid":"homenet","password":"secretpw"}`,
			want:  Request{"ssid": "homenet", "password": "secretpw"},
		},
		{
			name:  "boolean restart",
			input: `{"restart":true}`,
			want:  Request{"restart": "true"},
		},
		{
			name:  "number and nested values",
			input: `{"port":8080,"extra":{"a":1}}`,
			want:  Request{"port": "8080"},
		},
		{
			name:    "not json",
			input:   `ssid=homenet`,
			want:    Request{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("DecodeRequest() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("DecodeRequest()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRequest_Truthy(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", false},
		{"True", false},
		{"t", false},
		{"1", false},
		{"false", false},
		{"yes", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			req := Request{PropertyRestart: tt.value}
			if got := req.Truthy(PropertyRestart); got != tt.want {
				t.Errorf("Truthy(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDecodeRequest_NumericRestartIsNotTrue(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"restart":1}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if req.Truthy(PropertyRestart) {
		t.Errorf("Truthy(%q) = true, want false", req.Property(PropertyRestart))
	}
}

func TestRequest_PropertyOnNil(t *testing.T) {
	var req Request
	if got := req.Property(PropertySSID); got != "" {
		t.Errorf("Property() on nil request = %q, want empty", got)
	}
}
