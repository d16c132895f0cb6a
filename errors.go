package derailed

// GatewayError is a server-pushed gateway error (an op-2 frame). It is fatal
// to the session that received it; there is no recovery beyond opening a new
// session.
type GatewayError struct {
	// Detail is the error description carried in the frame's d field.
	Detail string
}

func (e *GatewayError) Error() string {
	return e.Detail
}

// RequestError is a non-success response from the REST API. The caller may
// retry or surface it; the library never does either on its own.
type RequestError struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int

	// Detail is the server-supplied message from the error envelope.
	Detail string
}

func (e *RequestError) Error() string {
	return e.Detail
}
