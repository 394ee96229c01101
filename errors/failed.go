package errors

// FailedRequest aborts a request with a status code and a message rendered as
// {"error": message}.
type FailedRequest struct {
	Status  int
	Message string
}

// Redirect aborts a request with a redirect to Location. A zero Status means 302 Found.
type Redirect struct {
	Status   int
	Location string
}

// Code returns the HTTP status of the redirect.
func (r Redirect) Code() int {
	if r.Status == 0 {
		return 302
	}
	return r.Status
}
