package protocol

import "strings"

// Shell and control requests.
const (
	ExecuteRequest    = "execute_request"
	CompleteRequest   = "complete_request"
	InspectRequest    = "inspect_request"
	ObjectInfoRequest = "object_info_request"
	IsCompleteRequest = "is_complete_request"
	KernelInfoRequest = "kernel_info_request"
	HistoryRequest    = "history_request"
	ShutdownRequest   = "shutdown_request"
	InterruptRequest  = "interrupt_request"
	CommInfoRequest   = "comm_info_request"
)

// Replies.
const (
	ExecuteReply    = "execute_reply"
	CompleteReply   = "complete_reply"
	InspectReply    = "inspect_reply"
	ObjectInfoReply = "object_info_reply"
	IsCompleteReply = "is_complete_reply"
	KernelInfoReply = "kernel_info_reply"
	HistoryReply    = "history_reply"
	ShutdownReply   = "shutdown_reply"
	InterruptReply  = "interrupt_reply"
	CommInfoReply   = "comm_info_reply"
)

// IOPub broadcasts.
const (
	StatusMsg         = "status"
	ExecuteInput      = "execute_input"
	ExecuteResult     = "execute_result"
	ErrorMsg          = "error"
	StreamMsg         = "stream"
	DisplayData       = "display_data"
	UpdateDisplayData = "update_display_data"
	ClearOutput       = "clear_output"
)

// Comm messages travel on shell (front-end to kernel) and iopub (kernel to front-ends).
const (
	CommOpen  = "comm_open"
	CommMsg   = "comm_msg"
	CommClose = "comm_close"
)

// Stdin messages.
const (
	InputRequest = "input_request"
	InputReply   = "input_reply"
)

const requestSuffix = "_request"

// ReplyType returns the reply message type for a request type.
func ReplyType(requestType string) string {
	return strings.TrimSuffix(requestType, requestSuffix) + "_reply"
}

// IsRequest reports whether msgType names a request expecting a reply.
func IsRequest(msgType string) bool {
	return strings.HasSuffix(msgType, requestSuffix)
}
