package phone

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "already e164", input: "+447700900123", region: "GB", want: "+447700900123"},
		{name: "national uk", input: "07700 900123", region: "GB", want: "+447700900123"},
		{name: "padded", input: "  +447700900123 ", region: "", want: "+447700900123"},
		{name: "empty", input: "   ", region: "GB", wantErr: true},
		{name: "garbage", input: "call me", region: "GB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsE164(t *testing.T) {
	if !IsE164("+447700900123") {
		t.Fatal("expected normalized uk mobile to be e164")
	}
	if IsE164("07700900123") {
		t.Fatal("national format must not be reported as e164")
	}
}
