package child

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/pinhaljunior/aventureiros/core"
)

var (
	classGroupTag  = "classgroup"
	classGroupText = "{0} não é uma classe válida"

	relationshipTag  = "relationship"
	relationshipText = "{0} não é um vínculo válido"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(classGroupTag, func(fl validator.FieldLevel) bool {
		return IsClassGroup(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, classGroupTag, classGroupText)

	_ = validate.RegisterValidation(relationshipTag, func(fl validator.FieldLevel) bool {
		rel := fl.Field().String()
		for _, r := range Relationships {
			if r == rel {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, relationshipTag, relationshipText)
}
