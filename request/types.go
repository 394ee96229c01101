package request

import (
	"github.com/sevenitynet/reliefboard/errors"
)

// Request is embedded by every handler request type.
type Request struct{}

// Failed aborts the request with status and message. It panics with errors.FailedRequest,
// which the recovery middleware turns into the response.
func (r Request) Failed(status int, message string) {
	panic(errors.FailedRequest{Status: status, Message: message})
}

// Redirect aborts the request with a 302 redirect to location.
func (r Request) Redirect(location string) {
	panic(errors.Redirect{Location: location})
}

// GetRequest marks a GET handler.
type GetRequest struct {
	Request
}

// PostRequest marks a POST handler.
type PostRequest struct {
	Request
}

// PutRequest marks a PUT handler.
type PutRequest struct {
	Request
}

// DeleteRequest marks a DELETE handler.
type DeleteRequest struct {
	Request
}
