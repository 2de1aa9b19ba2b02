package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pt_translations "github.com/go-playground/validator/v10/translations/pt_BR"
)

var (
	// custom validation tags & texts
	refMonthTag   = "refmonth"
	refMonthText  = "{0} deve estar no formato AAAA-MM"
	refMonthRegex = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

	cpfTag  = "cpf"
	cpfText = "{0} deve conter 11 dígitos"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "este campo é obrigatório"
)

// NewTranslator returns the pt_BR translator used for every validation message.
func NewTranslator() ut.Translator {
	ptBR := pt_BR.New()
	uni := ut.New(ptBR, ptBR)
	translator, _ := uni.GetTranslator("pt_BR")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = pt_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(refMonthTag, refMonthValidation)
	RegisterCustomTranslation(validate, translator, refMonthTag, refMonthText)

	_ = validate.RegisterValidation(cpfTag, cpfValidation)
	RegisterCustomTranslation(validate, translator, cpfTag, cpfText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// IsRefMonth reports whether s is a "YYYY-MM" reference month.
func IsRefMonth(s string) bool {
	return refMonthRegex.MatchString(s)
}

// Custom Global Validators

func refMonthValidation(fl validator.FieldLevel) bool {
	return IsRefMonth(fl.Field().String())
}

// cpfValidation only checks the digit count: the club stores what the guardian typed.
func cpfValidation(fl validator.FieldLevel) bool {
	return len(DigitsOnly(fl.Field().String())) == 11
}
