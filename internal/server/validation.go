package server

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	couponservice "github.com/smallbiznis/storefront/internal/coupon/service"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
)

// registerValidators installs the storefront tags on gin's validator.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("coupon_code", func(fl validator.FieldLevel) bool {
		return couponservice.ValidCode(coupondomain.NormalizeCode(fl.Field().String()))
	}); err != nil {
		return err
	}
	return v.RegisterValidation("hostname_fqdn", func(fl validator.FieldLevel) bool {
		host := domainbindingdomain.NormalizeHostname(fl.Field().String())
		return domainbindingdomain.ValidateHostname(host) == nil
	})
}
