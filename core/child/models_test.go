package child

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestClassGroupFor(t *testing.T) {
	today := core.NewDate(2025, time.March, 10)
	tests := []struct {
		birth core.Date
		want  string
	}{
		{birth: core.NewDate(2020, time.January, 1), want: ""},
		{birth: core.NewDate(2019, time.March, 10), want: ClassAbelhinhas},
		{birth: core.NewDate(2018, time.March, 11), want: ClassAbelhinhas},
		{birth: core.NewDate(2018, time.March, 10), want: ClassLuminares},
		{birth: core.NewDate(2017, time.February, 1), want: ClassEdificadores},
		{birth: core.NewDate(2016, time.January, 1), want: ClassMaos},
		{birth: core.NewDate(2015, time.January, 1), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.birth.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassGroupFor(tt.birth, today))
		})
	}
}

func TestChildForm_Validate(t *testing.T) {
	validate := newValidator()
	birth := core.NewDate(2018, time.May, 1)

	tests := []struct {
		name       string
		form       ChildForm
		wantFields []string
		wantErr    bool
	}{
		{name: "ok", form: ChildForm{Name: "  Lia ", BirthDate: birth, ClassGroup: ClassLuminares}},
		{name: "no class", form: ChildForm{Name: "Lia", BirthDate: birth}},
		{name: "no name", form: ChildForm{BirthDate: birth}, wantErr: true},
		{name: "bad class", form: ChildForm{Name: "Lia", BirthDate: birth, ClassGroup: "Tições"}, wantErr: true},
		{name: "no birth date", form: ChildForm{Name: "Lia"}, wantFields: []string{"birth_date"}},
		{
			name: "discounts",
			form: ChildForm{
				Name: "Lia", BirthDate: birth,
				FeeDiscountPercent: decimal.NewFromInt(120),
				FeeDiscountAmount:  decimal.NewFromInt(-1),
			},
			wantFields: []string{"fee_discount_percent", "fee_discount_amount"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate(validate)
			switch {
			case tt.wantErr:
				assert.Error(t, err)
			case len(tt.wantFields) > 0:
				require.IsType(t, &core.ValidationError{}, err)
				var got []string
				for _, f := range err.(*core.ValidationError).Fields {
					got = append(got, f.Field)
				}
				assert.Equal(t, tt.wantFields, got)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayloads(t *testing.T) {
	birth := core.NewDate(2018, time.May, 1)
	ok := Payload{FirstName: "Lia", LastName: "Souza", BirthDate: birth, AuthActivity: true, AuthMedical: true, AuthRules: true}

	assert.EqualError(t, ValidatePayloads(nil), "Adicione pelo menos um aventureiro.")
	assert.NoError(t, ValidatePayloads([]Payload{ok}))

	noAuth := ok
	noAuth.AuthMedical = false
	noName := ok
	noName.FirstName = " "
	err := ValidatePayloads([]Payload{ok, noAuth, noName})
	require.IsType(t, &core.ValidationError{}, err)
	assert.EqualError(t, err, "Autorizações obrigatórias não marcadas para Lia Souza.")
	fields := err.(*core.ValidationError).Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "children[1]", fields[0].Field)
	assert.Equal(t, "children[2]", fields[1].Field)
	assert.Equal(t, "Cada aventureiro precisa de nome e data de nascimento.", fields[1].Error)
}

func TestPayload_Child(t *testing.T) {
	p := Payload{
		FirstName: " Téo ",
		LastName:  "Lima",
		BirthDate: core.NewDate(2017, time.April, 2),
		Father:    Parent{Name: "Caio", CPF: "123", Phone: "119", Absent: true},
		Mother:    Parent{Name: " Ana ", Phone: "118"},
	}
	c := p.Child(core.NewDate(2025, time.May, 1))
	assert.Equal(t, "Téo Lima", c.Name)
	assert.Equal(t, ClassEdificadores, c.ClassGroup)
	assert.True(t, c.Active)
	assert.True(t, c.FatherAbsent)
	assert.Empty(t, c.FatherName)
	assert.Empty(t, c.FatherCPF)
	assert.Empty(t, c.FatherPhone)
	assert.Equal(t, "Ana", c.MotherName)
	assert.Equal(t, "118", c.MotherPhone)
}

func TestNewLink_Validate(t *testing.T) {
	validate := newValidator()
	assert.NoError(t, (&NewLink{GuardianID: 1, ChildID: 2, Relationship: RelGrandparent}).Validate(validate))
	assert.NoError(t, (&NewLink{GuardianID: 1, ChildID: 2}).Validate(validate))
	assert.Error(t, (&NewLink{GuardianID: 1, ChildID: 2, Relationship: "Vizinho"}).Validate(validate))
	assert.Error(t, (&NewLink{ChildID: 2}).Validate(validate))
}
