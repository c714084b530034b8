package handlers

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

var registerOnce sync.Once

// RegisterValidators installs the "username" and "strongpassword" binding
// rules on Gin's validator. It is safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return services.ValidUsername(fl.Field().String())
		})
		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return services.ValidPassword(fl.Field().String())
		})
	})
}

// bindingMessage turns a binding error into a short client-facing message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid JSON body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "username":
		return "username must be 4-20 letters, digits, '_', '.' or '-'"
	case "strongpassword":
		return "password must be 6-72 characters with an uppercase letter and one of @$!%*?&"
	case "min", "max":
		return fe.Field() + " has an invalid length"
	case "uri", "url":
		return fe.Field() + " must be a valid URI"
	default:
		return fe.Field() + " is invalid"
	}
}
