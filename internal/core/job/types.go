package job

// Kind classifies how a job obtains its content.
type Kind string

const (
	KindURL  Kind = "url"  // navigate to an address
	KindHTML Kind = "html" // inject literal markup
)

// WaitPolicy selects the navigation-completion signal.
type WaitPolicy string

const (
	WaitFirstPaint     WaitPolicy = "first-paint"
	WaitStructureReady WaitPolicy = "structure-ready"
	WaitNetQuietShort  WaitPolicy = "network-quiet-short"
	WaitNetQuietLong   WaitPolicy = "network-quiet-long"
)

// ContentFormat selects the serialization of the content snapshot.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatMarkdown ContentFormat = "markdown"
)

// ActionType enumerates the closed set of scripted steps.
type ActionType string

const (
	ActionWaitSelector ActionType = "wait_selector"
	ActionClick        ActionType = "click"
	ActionHover        ActionType = "hover"
	ActionTypeText     ActionType = "type_text"
	ActionKeyPress     ActionType = "key_press"
	ActionClickPoint   ActionType = "click_point"
	ActionWaitTime     ActionType = "wait_time"
	ActionWaitExpr     ActionType = "wait_expr"
	ActionWaitPaint    ActionType = "wait_paint"
	ActionMute         ActionType = "mute_heuristic"
	ActionElementShot  ActionType = "element_shot"
)

// ExtractionType enumerates the closed set of extraction reads.
type ExtractionType string

const (
	ExtractText      ExtractionType = "text"
	ExtractAttribute ExtractionType = "attribute"
	ExtractHTML      ExtractionType = "html"
	ExtractExists    ExtractionType = "exists"
)

// Action is one step of the interaction sequence. Only the fields the
// variant needs are set; Type drives dispatch.
type Action struct {
	Type       ActionType `json:"type"`
	Selector   string     `json:"selector,omitempty"`
	Text       string     `json:"text,omitempty"`
	Key        string     `json:"key,omitempty"`
	X          float64    `json:"x,omitempty"`
	Y          float64    `json:"y,omitempty"`
	Expression string     `json:"expression,omitempty"`
	Name       string     `json:"name,omitempty"`
	DurationMs int        `json:"duration_ms,omitempty"`
	TimeoutMs  int        `json:"timeout_ms,omitempty"`
}

// ExtractionSpec is a declarative read against final rendered content.
type ExtractionSpec struct {
	Type     ExtractionType `json:"type"`
	Selector string         `json:"selector"`
	Attr     string         `json:"attr,omitempty"`
	All      bool           `json:"all,omitempty"`
	Name     string         `json:"name,omitempty"`
}

// ExtractionResult mirrors one spec in order. Value is a string, a
// []string (all-matches), a bool (exists) or nil (unmatched selector).
type ExtractionResult struct {
	Type     ExtractionType `json:"type"`
	Name     string         `json:"name,omitempty"`
	Selector string         `json:"selector"`
	Value    interface{}    `json:"value"`
}

// RenderConfig carries the surface configuration for a job.
type RenderConfig struct {
	ViewportWidth  int               `json:"viewport_width"`
	ViewportHeight int               `json:"viewport_height"`
	WaitUntil      WaitPolicy        `json:"wait_until"`
	TimeoutMs      int               `json:"timeout_ms"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// OutputConfig selects which primary artifacts a job produces.
type OutputConfig struct {
	ContentSnapshot bool          `json:"content_snapshot"`
	ImageSnapshot   bool          `json:"image_snapshot"`
	FullSurface     bool          `json:"full_surface"`
	ContentFormat   ContentFormat `json:"content_format"`
}

// DiagConfig enables optional diagnostic capture.
type DiagConfig struct {
	Console   bool `json:"console,omitempty"`
	Network   bool `json:"network,omitempty"`
	StepShots bool `json:"step_shots,omitempty"`
}

// Job is a normalized, validated unit of work.
type Job struct {
	ID              string           `json:"id"`
	Kind            Kind             `json:"kind"`
	URL             string           `json:"url,omitempty"`
	HTML            string           `json:"html,omitempty"`
	Render          RenderConfig     `json:"render"`
	Output          OutputConfig     `json:"output"`
	PostLoadDelayMs int              `json:"post_load_delay_ms,omitempty"`
	Actions         []Action         `json:"actions,omitempty"`
	Extract         []ExtractionSpec `json:"extract,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	Diag            DiagConfig       `json:"diag,omitempty"`
}

// RawJob is the wire shape dropped into the inbox. Pointers distinguish
// absent fields from zero values so Normalize can apply defaults.
type RawJob struct {
	ID              string            `json:"id,omitempty"`
	Kind            string            `json:"kind"`
	URL             string            `json:"url,omitempty"`
	HTML            string            `json:"html,omitempty"`
	ViewportWidth   *int              `json:"viewport_width,omitempty"`
	ViewportHeight  *int              `json:"viewport_height,omitempty"`
	WaitUntil       string            `json:"wait_until,omitempty"`
	TimeoutMs       *int              `json:"timeout_ms,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	ContentSnapshot *bool             `json:"content_snapshot,omitempty"`
	ImageSnapshot   *bool             `json:"image_snapshot,omitempty"`
	FullSurface     *bool             `json:"full_surface,omitempty"`
	ContentFormat   string            `json:"content_format,omitempty"`
	PostLoadDelayMs int               `json:"post_load_delay_ms,omitempty"`
	Actions         []Action          `json:"actions,omitempty"`
	Extract         []ExtractionSpec  `json:"extract,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	CaptureConsole  bool              `json:"capture_console,omitempty"`
	CaptureNetwork  bool              `json:"capture_network,omitempty"`
	StepShots       bool              `json:"step_shots,omitempty"`
}

// JobResult is the terminal outcome of one executed job.
type JobResult struct {
	OK         bool   `json:"ok"`
	Err        string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at_ms"`
	EndedAt    int64  `json:"ended_at_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// ConsoleEvent is one captured console message.
type ConsoleEvent struct {
	Ts   int64  `json:"ts"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// NetworkEvent is one captured request or response.
type NetworkEvent struct {
	Ts     int64  `json:"ts"`
	Phase  string `json:"phase"` // request | response
	Method string `json:"method,omitempty"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
}
