package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"series:acme:", "series:acme:"},
		{"series:a*b:", `series:a\*b:`},
		{"series:[x]?:", `series:\[x\]\?:`},
		{`series:a\b:`, `series:a\\b:`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeGlob(tt.in))
		})
	}
}
