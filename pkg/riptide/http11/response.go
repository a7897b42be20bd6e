package http11

// Response is the handler-facing response. The status message is never
// stored; Assemble derives it from StatusCode.
type Response struct {
	StatusCode int
	Header     Header
	Body       []byte
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{StatusCode: StatusOK}
}

// Status sets the status code and returns the response for chaining.
func (r *Response) Status(code int) *Response {
	r.StatusCode = code
	return r
}

// SetBody replaces the body.
func (r *Response) SetBody(body []byte) *Response {
	r.Body = body
	return r
}

// WriteText sets a text/plain body.
func (r *Response) WriteText(code int, text string) {
	r.StatusCode = code
	r.Header.Set(HeaderContentType, MIMETextPlain)
	r.Body = []byte(text)
}

// WriteJSON sets an already encoded JSON body.
func (r *Response) WriteJSON(code int, data []byte) {
	r.StatusCode = code
	r.Header.Set(HeaderContentType, MIMEApplicationJSON)
	r.Body = data
}

// WriteHTML sets a text/html body.
func (r *Response) WriteHTML(code int, html string) {
	r.StatusCode = code
	r.Header.Set(HeaderContentType, MIMETextHTML)
	r.Body = []byte(html)
}

// Reset returns the response to its zero 200 state.
func (r *Response) Reset() {
	r.StatusCode = StatusOK
	r.Header.Reset()
	r.Body = nil
}

// BadRequest returns the fatal parse-error response. It always closes the
// connection.
func BadRequest() *Response {
	res := &Response{StatusCode: StatusBadRequest}
	res.Header.Set(HeaderContentType, MIMETextHTML)
	res.Header.Set(HeaderConnection, "close")
	res.Body = []byte(badRequestBody)
	return res
}
