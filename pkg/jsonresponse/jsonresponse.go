// Package jsonresponse enables consistent responses across all handlers.
package jsonresponse

// ErrorBody is the json encoded error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Error wraps a given err into json friendly struct.
func Error(err error) ErrorBody {
	return ErrorBody{Error: err.Error()}
}
