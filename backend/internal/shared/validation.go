// ============================================================================
// backend/internal/shared/validation.go
// Struct validation with english messages and ObjectID parsing
// ============================================================================

package shared

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	requiredTag  = "required"
	requiredText = "{0} is required"
)

func init() {
	validate = validator.New()

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	registerTranslation("objectid", "{0} must be a valid id")

	// notblank rejects whitespace-only text as well as the empty string.
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	registerTranslation("notblank", requiredText)
	registerTranslation(requiredTag, requiredText, true)
}

// registerTranslation registers a message for a validation tag
func registerTranslation(tag, text string, override ...bool) {
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

// Validate checks struct tags and returns an InvalidArgument status listing
// every failing field.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fe.Translate(translator))
	}
	return status.Error(codes.InvalidArgument, strings.Join(messages, "; "))
}

// ParseID parses a 24-hex identifier, reporting a malformed one as InvalidArgument
func ParseID(field, value string) (primitive.ObjectID, error) {
	if value == "" {
		return primitive.NilObjectID, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, status.Errorf(codes.InvalidArgument, "invalid %s: %s", field, value)
	}
	return id, nil
}

// ParseIDs parses a list of identifiers
func ParseIDs(field string, values []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(values))
	for _, v := range values {
		id, err := ParseID(field, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
