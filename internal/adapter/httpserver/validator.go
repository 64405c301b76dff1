package httpserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	apperrors "github.com/darthbatman/TypeSense/internal/platform/errors"
)

// requestValidator implements echo.Validator with English messages that
// name fields by their wire tag.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	enLocale := en.New()
	trans, _ := ut.New(enLocale, enLocale).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(wireName)
	_ = entranslations.RegisterDefaultTranslations(v, trans)

	return &requestValidator{validate: v, translator: trans}
}

// Validate returns a validation error for the first failing field.
func (rv *requestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.InternalError("request validation failed", err)
	}

	fe := verrs[0]
	return apperrors.ValidationError(fe.Translate(rv.translator)).WithField("field", fieldPath(fe))
}

// fieldPath drops the top-level struct name: "changeConversationRequest.messages[0].author"
// becomes "messages[0].author".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func wireName(fld reflect.StructField) string {
	for _, key := range []string{"json", "query"} {
		tag := fld.Tag.Get(key)
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	}
	return fld.Name
}
