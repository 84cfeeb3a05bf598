package deadline

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeportal/core"
)

var leadHoursTag = "leadhours"

// InitValidators registers `leadhours`, which accepts 1 to conf.MaxLeadHours.
func InitValidators(validate *validator.Validate, translator ut.Translator, conf core.SchedulerConfig) {
	_ = validate.RegisterValidation(leadHoursTag, func(fl validator.FieldLevel) bool {
		h := fl.Field().Int()
		return h >= 1 && h <= int64(conf.MaxLeadHours)
	})
	core.RegisterCustomTranslation(
		validate, translator, leadHoursTag,
		fmt.Sprintf("notification lead time must be between 1 and %d hours", conf.MaxLeadHours),
	)
}
