package crypto

import "testing"

func TestCanonicalizeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   `{"test": "value"`,
			wantErr: true,
		},
		{
			name:  "keys are sorted and whitespace removed",
			input: `{ "status": "ACCEPTED", "isValid": true, "errors": [] }`,
			want:  `{"errors":[],"isValid":true,"status":"ACCEPTED"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CanonicalizeJSON() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalizeJSON() returned error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("CanonicalizeJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}
