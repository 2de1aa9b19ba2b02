package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(nil)
	return validate
}

func TestCheckPassword(t *testing.T) {
	LoadCommonPasswords(nil)

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "empty", pwd: ""},
		{name: "too short", pwd: "aB3$", want: pwdMinLenTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "loosely related to name", pwd: "mariasilva", attrs: []string{"Maria", "Souza"}},
		{name: "similar to whatsapp", pwd: "+5511988208134", attrs: []string{"+5511988208134"}, want: pwdAttrSimTag},
		{name: "common", pwd: "Password", want: pwdNoCommonTag},
		{name: "ok", pwd: "trilha-da-serra-42", attrs: []string{"Maria", "+5511988208134"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, tt.attrs...))
		})
	}
}

func TestStaffSignup_Validate(t *testing.T) {
	validate := newValidator()

	valid := func() StaffSignup {
		return StaffSignup{
			FirstName:       " Ana ",
			WhatsappNumber:  "(11) 98820-8134",
			Password:        "trilha-da-serra-42",
			PasswordConfirm: "trilha-da-serra-42",
			Roles:           []string{RoleDiretoria},
		}
	}

	t.Run("valid", func(t *testing.T) {
		ss := valid()
		require.NoError(t, ss.Validate(validate))
		assert.Equal(t, "Ana", ss.FirstName)
		assert.Equal(t, "+5511988208134", ss.WhatsappNumber)
	})

	t.Run("no roles", func(t *testing.T) {
		ss := valid()
		ss.Roles = nil
		assert.Error(t, ss.Validate(validate))
	})

	t.Run("unknown role", func(t *testing.T) {
		ss := valid()
		ss.Roles = []string{RoleDiretoria, "CHEFE"}
		err := ss.Validate(validate)
		require.Error(t, err)
		vErrs, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Equal(t, "roles", vErrs[0].Field())
	})

	t.Run("passwords differ", func(t *testing.T) {
		ss := valid()
		ss.PasswordConfirm = "outra-senha-qualquer"
		assert.Error(t, ss.Validate(validate))
	})

	t.Run("weak password", func(t *testing.T) {
		ss := valid()
		ss.Password = "12345678"
		ss.PasswordConfirm = "12345678"
		err := ss.Validate(validate)
		require.Error(t, err)
		vErrs, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Equal(t, pwdNotAllNumTag, vErrs[0].Tag())
	})
}
