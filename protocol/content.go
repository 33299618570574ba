package protocol

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusAbort = "abort"
)

// ExecuteRequestContent is the payload of execute_request.
type ExecuteRequestContent struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent"`
	StoreHistory    bool              `json:"store_history"`
	UserExpressions map[string]string `json:"user_expressions"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

// ErrorContent describes a failed evaluation. It is the iopub error payload
// and is embedded in error-status replies.
type ErrorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type ExecuteReplyContent struct {
	Status          string         `json:"status"`
	ExecutionCount  int            `json:"execution_count"`
	Payload         []any          `json:"payload,omitempty"`
	UserExpressions map[string]any `json:"user_expressions,omitempty"`
	*ErrorContent
}

type ExecuteInputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

type ExecuteResultContent struct {
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

type DisplayDataContent struct {
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata"`
	Transient map[string]any `json:"transient,omitempty"`
}

type ClearOutputContent struct {
	Wait bool `json:"wait"`
}

// Stream names.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

type StreamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Kernel execution states broadcast on iopub.
const (
	StateStarting = "starting"
	StateIdle     = "idle"
	StateBusy     = "busy"
)

type StatusContent struct {
	ExecutionState string `json:"execution_state"`
}

type CompleteRequestContent struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

type CompleteReplyContent struct {
	Status      string         `json:"status"`
	Matches     []string       `json:"matches"`
	CursorStart int            `json:"cursor_start"`
	CursorEnd   int            `json:"cursor_end"`
	Metadata    map[string]any `json:"metadata"`
	*ErrorContent
}

type InspectRequestContent struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

type InspectReplyContent struct {
	Status   string         `json:"status"`
	Found    bool           `json:"found"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata"`
	*ErrorContent
}

// ObjectInfoRequestContent is the legacy (protocol 4) introspection request.
type ObjectInfoRequestContent struct {
	OName       string `json:"oname"`
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

type ObjectInfoReplyContent struct {
	Name       string `json:"name"`
	Found      bool   `json:"found"`
	TypeName   string `json:"type_name,omitempty"`
	StringForm string `json:"string_form,omitempty"`
	Docstring  string `json:"docstring,omitempty"`
	Definition string `json:"definition,omitempty"`
}

type IsCompleteRequestContent struct {
	Code string `json:"code"`
}

type IsCompleteReplyContent struct {
	Status string `json:"status"`
	Indent string `json:"indent,omitempty"`
}

type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type LanguageInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	MIMEType          string `json:"mimetype"`
	FileExtension     string `json:"file_extension"`
	PygmentsLexer     string `json:"pygments_lexer,omitempty"`
	CodemirrorMode    string `json:"codemirror_mode,omitempty"`
	NBConvertExporter string `json:"nbconvert_exporter,omitempty"`
}

type KernelInfoReplyContent struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	HelpLinks             []HelpLink   `json:"help_links"`
}

// History access types.
const (
	HistoryRange  = "range"
	HistoryTail   = "tail"
	HistorySearch = "search"
)

type HistoryRequestContent struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	Session        int    `json:"session"`
	Start          int    `json:"start"`
	Stop           int    `json:"stop"`
	N              int    `json:"n"`
	Pattern        string `json:"pattern"`
	Unique         bool   `json:"unique"`
}

type HistoryReplyContent struct {
	Status  string `json:"status"`
	History []any  `json:"history"`
}

type ShutdownRequestContent struct {
	Restart bool `json:"restart"`
}

type ShutdownReplyContent struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

type InterruptReplyContent struct {
	Status string `json:"status"`
}

type InputRequestContent struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

type InputReplyContent struct {
	Value string `json:"value"`
}

type CommOpenContent struct {
	CommID     string         `json:"comm_id"`
	TargetName string         `json:"target_name"`
	Data       map[string]any `json:"data"`
}

type CommMsgContent struct {
	CommID string         `json:"comm_id"`
	Data   map[string]any `json:"data"`
}

type CommCloseContent struct {
	CommID string         `json:"comm_id"`
	Data   map[string]any `json:"data"`
}

type CommInfoRequestContent struct {
	TargetName string `json:"target_name,omitempty"`
}

type CommInfo struct {
	TargetName string `json:"target_name"`
}

type CommInfoReplyContent struct {
	Status string              `json:"status"`
	Comms  map[string]CommInfo `json:"comms"`
}
