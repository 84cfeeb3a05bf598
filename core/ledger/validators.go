package ledger

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeportal/core"
)

var (
	academicYearTag  = "academicyear"
	academicYearText = "unknown academic year"
)

// InitValidators registers the ledger validations; `academicyear` accepts the configured years only.
func InitValidators(validate *validator.Validate, translator ut.Translator, fees core.FeesConfig) {
	_ = validate.RegisterValidation(academicYearTag, func(fl validator.FieldLevel) bool {
		return fees.HasAcademicYear(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, academicYearTag, academicYearText)
}
