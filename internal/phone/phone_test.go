package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already clean", input: "15551234567", want: "15551234567"},
		{name: "dashes and spaces", input: "+1 555-123-4567", want: "15551234567"},
		{name: "parentheses", input: "(555) 123-4567", want: "15551234567"},
		{name: "bare ten digits gets country code", input: "5551234567", want: "15551234567"},
		{name: "international", input: "+44 20 7946 0958", want: "442079460958"},
		{name: "too short", input: "12345", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "letters only", input: "not-a-number", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
