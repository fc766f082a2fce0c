package validation

// FieldError is a client-side validation failure addressed to one form field.
// It never leaves the process as anything but a 400.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string { return e.Message }

func fieldErr(field, msg string) *FieldError {
	return &FieldError{Field: field, Message: msg}
}

// Required returns the "<what> required" error used by endpoints with
// missing parameters.
func Required(field, msg string) *FieldError { return fieldErr(field, msg) }
