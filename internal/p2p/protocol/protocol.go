// Package protocol implements the P2P fabric's single application protocol,
// `/sven-p2p/task/1.0.0` (§4.7): CBOR-encoded request/response framed with
// a 4-byte big-endian length prefix.
package protocol

import (
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/sven-run/sven/internal/p2p/roster"
)

// ProtocolID names the request/response protocol that every Yamux stream
// carries; the name itself is not sent or negotiated on the wire.
const ProtocolID = "/sven-p2p/task/1.0.0"

// MaxMessageBytes bounds a single CBOR payload (§4.7: "maximum 8 MiB").
const MaxMessageBytes = 8 << 20

// RequestTimeoutSeconds bounds how long a requester waits for a response
// (§4.7: "requests time out at 900 s").
const RequestTimeoutSeconds = 900

// contentKind discriminates the CBOR-encoded ContentBlock union; cbor/v2 has
// no native sum-type support, so the union is a struct with at most one
// populated variant field, tagged by Kind — the same shape Request/Response
// already use below.
type contentKind string

const (
	ContentText  contentKind = "text"
	ContentImage contentKind = "image"
	ContentJSON  contentKind = "json"
)

// TextContent is a ContentBlock's Text variant payload.
type TextContent struct {
	Text string `cbor:"text"`
}

// ImageContent is a ContentBlock's Image variant payload: raw bytes plus
// MIME type, so the block is self-contained over the wire, with an optional
// rendering hint (e.g. "low", "high") mirroring a vision model's own detail
// parameter.
type ImageContent struct {
	Data     []byte `cbor:"data"`
	MimeType string `cbor:"mime_type"`
	Detail   string `cbor:"detail,omitempty"`
}

// JSONContent is a ContentBlock's Json variant payload: an arbitrary
// structured value (tool call arguments, structured output, etc.).
type JSONContent struct {
	Value any `cbor:"value"`
}

// jsonValueDecMode decodes CBOR maps inside a JSONContent as
// map[string]any, the shape a JSON object has in Go.
var jsonValueDecMode, _ = cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()

// UnmarshalCBOR decodes j so that a map[string]any Value round-trips with
// the same Go type it was sent with.
func (j *JSONContent) UnmarshalCBOR(data []byte) error {
	type plain JSONContent
	var p plain
	if err := jsonValueDecMode.Unmarshal(data, &p); err != nil {
		return err
	}
	*j = JSONContent(p)
	return nil
}

// ContentBlock is one unit of a TaskRequest's payload or a TaskResponse's
// result: plain text, a self-contained image, or an arbitrary JSON value.
type ContentBlock struct {
	Kind  contentKind   `cbor:"type"`
	Text  *TextContent  `cbor:"text,omitempty"`
	Image *ImageContent `cbor:"image,omitempty"`
	Json  *JSONContent  `cbor:"json,omitempty"`
}

// TextBlock builds a ContentBlock carrying plain text.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: &TextContent{Text: text}}
}

// ImageBlock builds a ContentBlock carrying raw image bytes.
func ImageBlock(data []byte, mimeType, detail string) ContentBlock {
	return ContentBlock{Kind: ContentImage, Image: &ImageContent{Data: data, MimeType: mimeType, Detail: detail}}
}

// JSONBlock builds a ContentBlock carrying an arbitrary structured value.
func JSONBlock(value any) ContentBlock {
	return ContentBlock{Kind: ContentJSON, Json: &JSONContent{Value: value}}
}

// AsText returns the block's text if it is a Text variant.
func (c ContentBlock) AsText() (string, bool) {
	if c.Kind == ContentText && c.Text != nil {
		return c.Text.Text, true
	}
	return "", false
}

// taskState discriminates TaskStatus, CBOR-tagged the same way as
// ContentBlock above.
type taskState string

const (
	StateCompleted taskState = "completed"
	StateFailed    taskState = "failed"
	StatePartial   taskState = "partial"
)

// TaskStatus is a TaskResponse's completion outcome: Completed, Failed (with
// a reason), or Partial.
type TaskStatus struct {
	State  taskState `cbor:"state"`
	Reason string    `cbor:"reason,omitempty"`
}

// Completed reports successful, full task completion.
func Completed() TaskStatus { return TaskStatus{State: StateCompleted} }

// Failed reports task failure with a human-readable reason.
func Failed(reason string) TaskStatus { return TaskStatus{State: StateFailed, Reason: reason} }

// Partial reports that the task produced partial results without fully
// completing.
func Partial() TaskStatus { return TaskStatus{State: StatePartial} }

// TaskRequest is a delegated task sent to a peer, mirroring the delegation
// tool's own contract (§4.6) so a remote peer can be dispatched the same
// way a local sub-agent is.
type TaskRequest struct {
	// ID is echoed in the TaskResponse for correlation.
	ID string `cbor:"id"`
	// OriginatorRoom names the room this request originates from.
	OriginatorRoom string `cbor:"originator_room,omitempty"`
	// Description is what the receiving agent should do. For a plain text
	// message, Description carries the message and Payload stays empty;
	// the receiver answers it with a TaskResult like any other task.
	Description string `cbor:"description"`
	// Payload is the multimodal task input: text prompts, images, JSON
	// context.
	Payload []ContentBlock `cbor:"payload,omitempty"`
}

// NewTaskRequest builds a TaskRequest with a fresh correlation ID.
func NewTaskRequest(originatorRoom, description string, payload []ContentBlock) TaskRequest {
	return TaskRequest{
		ID:             uuid.NewString(),
		OriginatorRoom: originatorRoom,
		Description:    description,
		Payload:        payload,
	}
}

// TaskResponse carries a completed (or failed, or partial) task's result
// back to the requester.
type TaskResponse struct {
	// RequestID matches the originating TaskRequest.ID.
	RequestID string `cbor:"request_id"`
	// Agent identifies whichever node actually handled the request.
	Agent roster.AgentCard `cbor:"agent"`
	// Result may contain multiple content blocks (text, images, JSON).
	Result []ContentBlock `cbor:"result,omitempty"`
	// Status is the task's completion outcome.
	Status TaskStatus `cbor:"status"`
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64 `cbor:"duration_ms"`
}

// Text concatenates every Text-variant block in Result, the common case of
// a purely textual reply.
func (r TaskResponse) Text() string {
	var out string
	for _, block := range r.Result {
		if t, ok := block.AsText(); ok {
			out += t
		}
	}
	return out
}

// IsError reports whether the task failed.
func (r TaskResponse) IsError() bool { return r.Status.State == StateFailed }

// ErrorTaskResponse builds a failed TaskResponse, e.g. for a node with no
// task handler configured.
func ErrorTaskResponse(requestID string, agent roster.AgentCard, reason string) TaskResponse {
	return TaskResponse{RequestID: requestID, Agent: agent, Status: Failed(reason)}
}

// ElapsedMs returns the whole milliseconds elapsed since start, for
// populating TaskResponse.DurationMs.
func ElapsedMs(start time.Time) int64 { return time.Since(start).Milliseconds() }

// requestKind/responseKind discriminate the CBOR-encoded enum-like union
// types below; cbor/v2 has no native sum-type support, so each union is a
// struct with at most one populated variant field, tagged by Kind.
type requestKind string

const (
	RequestAnnounce requestKind = "announce"
	RequestTask     requestKind = "task"
)

type responseKind string

const (
	ResponseAck        responseKind = "ack"
	ResponseTaskResult responseKind = "task_result"
)

// Request is the CBOR payload of an outbound P2pRequest (§4.7).
type Request struct {
	Kind     requestKind       `cbor:"kind"`
	Announce *roster.AgentCard `cbor:"announce,omitempty"`
	Task     *TaskRequest      `cbor:"task,omitempty"`
}

// AnnounceRequest builds a Request announcing card, sent on first
// connection to a peer.
func AnnounceRequest(card roster.AgentCard) Request {
	return Request{Kind: RequestAnnounce, Announce: &card}
}

// TaskRequestMsg builds a Request delegating task to a peer.
func TaskRequestMsg(task TaskRequest) Request {
	return Request{Kind: RequestTask, Task: &task}
}

// Response is the CBOR payload of an inbound P2pResponse (§4.7).
type Response struct {
	Kind       responseKind  `cbor:"kind"`
	TaskResult *TaskResponse `cbor:"task_result,omitempty"`
}

// AckResponse acknowledges an Announce.
func AckResponse() Response { return Response{Kind: ResponseAck} }

// TaskResultResponse carries a completed task's result.
func TaskResultResponse(result TaskResponse) Response {
	return Response{Kind: ResponseTaskResult, TaskResult: &result}
}
