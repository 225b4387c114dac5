package extractor

// Code is a stable identifier for why extraction failed, independent of the
// underlying provider's own error text.
type Code string

const (
	CodeUnsupportedType     Code = "unsupported_type"
	CodeFileNotFound        Code = "file_not_found"
	CodeMissingAPIKey       Code = "missing_api_key"
	CodeUnsupportedProvider Code = "unsupported_provider"
	CodeInvalidJSON         Code = "invalid_json"
	CodeInvalidJSONShape    Code = "invalid_json_shape"
	CodeEmptyResponse       Code = "empty_response"
	CodeProviderRequestFailed Code = "provider_request_failed"
	CodeAllProvidersFailed  Code = "all_providers_failed"
)

// Error is a tagged extraction failure. Code drives retry and routing
// decisions upstream; Message carries human-readable detail.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether target is an *Error carrying the same Code, so
// callers can write errors.Is(err, &extractor.Error{Code: extractor.CodeInvalidJSON}).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}
