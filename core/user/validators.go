package user

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/pinhaljunior/aventureiros/core"
	appfs "github.com/pinhaljunior/aventureiros/fs"
)

var (
	roleTag  = "role"
	roleText = "{0} não é um papel válido"

	rolesTag  = "roles"
	rolesText = "{0} contém papéis inválidos"

	whatsappTag  = "whatsapp"
	whatsappText = "{0} deve ser um número de WhatsApp válido"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("a senha deve conter pelo menos %d caracteres", pwdMinLen)

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "a senha não pode ser inteiramente numérica"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "a senha é muito parecida com seus dados pessoais"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "esta senha é muito comum"

	commonPasswordsFile = "passwords/common-passwords.txt"
	commonPasswords     []string
	loadPasswordsOnce   sync.Once
)

// InitValidators registers the user validators and their pt_BR texts.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(rolesTag, rolesValidation)
	core.RegisterCustomTranslation(validate, translator, rolesTag, rolesText)

	_ = validate.RegisterValidation(whatsappTag, whatsappValidation)
	core.RegisterCustomTranslation(validate, translator, whatsappTag, whatsappText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, StaffSignup{}, GuardianData{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords reads the embedded common passwords list once.
func LoadCommonPasswords(logger core.Logger) {
	loadPasswordsOnce.Do(func() {
		file, err := appfs.FS.Open(commonPasswordsFile)
		if err != nil {
			if logger != nil {
				logger.Error(fmt.Sprintf("opening %s: %v", commonPasswordsFile, err), err)
			}
			return
		}
		//goland:noinspection GoUnhandledErrorResult
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
				commonPasswords = append(commonPasswords, pwd)
			}
		}
		sort.Strings(commonPasswords)
	})
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}

// rolesValidation checks that provided user roles are all known.
func rolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

func whatsappValidation(fl validator.FieldLevel) bool {
	return NormalizeWhatsapp(fl.Field().String()) != ""
}

// userStructValidation applies the password policy to the password fields of the user forms.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.WhatsappNumber, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.Email)
		}
	case StaffSignup:
		validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.WhatsappNumber, usr.Email)
	case GuardianData:
		validatePassword(usr.Password, sl, usr.FirstName, usr.LastName, usr.WhatsappNumber, usr.Email)
	case ResetUserPassword:
		validatePassword(usr.Password, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - not all numeric
// - no user attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, attrs ...string) {
	if tag := checkPassword(pwd, attrs...); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// checkPassword returns the tag of the first violated password rule, or "".
func checkPassword(pwd string, attrs ...string) string {
	if pwd == "" {
		return "" // reported by `required`
	}

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		return pwdMinLenTag
	}

	allNum := true
	for _, char := range runes {
		if !unicode.IsDigit(char) {
			allNum = false
			break
		}
	}
	if allNum {
		return pwdNotAllNumTag
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(attr)
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}

	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) {
		if commonPasswords[idx] == lpwd {
			return pwdNoCommonTag
		}
	}
	return ""
}
