package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// uploadForm is the validated view of an upload request. File fields hold
// the client-supplied file names.
type uploadForm struct {
	CriteriaFile    string `form:"marking_criteria" validate:"required,pdf"`
	HomeworkFile    string `form:"homework" validate:"required,pdf"`
	StudentName     string `form:"student_name"`
	AssignmentTitle string `form:"assignment_title"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("pdf", pdfNameValidator)
	return v
}

// pdfNameValidator accepts file names with a .pdf extension, in any case.
func pdfNameValidator(fl validator.FieldLevel) bool {
	name, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// validationDetail turns the first validation failure into a client message.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Missing file field %s", fe.Field())
	case "pdf":
		return fmt.Sprintf("File %v is not a PDF", fe.Value())
	default:
		return fmt.Sprintf("Invalid value for %s", fe.Field())
	}
}
