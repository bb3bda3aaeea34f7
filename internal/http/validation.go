package http

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// bindingRules are the custom tags request structs rely on.
var bindingRules = map[string]validator.Func{
	"notblank": notBlank,
}

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators adds bindingRules to gin's validator engine once per process.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unsupported binding engine %T", binding.Validator.Engine())
			return
		}
		validatorsErr = registerRules(v, bindingRules)
	})
	return validatorsErr
}

func registerRules(v *validator.Validate, rules map[string]validator.Func) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q validator: %w", tag, err)
		}
	}
	return nil
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
