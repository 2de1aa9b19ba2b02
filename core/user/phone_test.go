package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhatsapp(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "empty", value: "", want: ""},
		{name: "blank", value: "   ", want: ""},
		{name: "formatted BR mobile", value: "(11) 98820-8134", want: "+5511988208134"},
		{name: "already E.164", value: "+5511988208134", want: "+5511988208134"},
		{name: "digits only", value: "11988208134", want: "+5511988208134"},
		{name: "invalid short number keeps digits", value: "1234abc", want: "1234"},
		{name: "no digits", value: "abc", want: ""},
		{name: "leading zero keeps digits", value: "0000000000", want: "0000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWhatsapp(tt.value))
		})
	}
}
