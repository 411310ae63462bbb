package devtool

import "encoding/json"

// request is an outbound protocol frame.
type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// frame is an inbound protocol frame. A frame carrying an id is a response
// to a previously issued request; a frame without an id is a notification.
type frame struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

func (f *frame) isResponse() bool {
	return f.ID != nil
}

// pendingCall tracks one outstanding request from issue until a matching
// response, a per-call timeout, or a connection loss sweep resolves it.
type pendingCall struct {
	id     int64
	method string
	done   chan callResult
}

type callResult struct {
	result json.RawMessage
	err    error
}
