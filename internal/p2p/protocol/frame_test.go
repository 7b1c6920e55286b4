package protocol

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/sven-run/sven/internal/p2p/identity"
	"github.com/sven-run/sven/internal/p2p/roster"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := TaskRequestMsg(NewTaskRequest("room-1", "do the thing", nil))
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var got Request
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Kind != RequestTask || got.Task == nil || got.Task.Description != "do the thing" {
		t.Fatalf("unexpected round-tripped request: %+v", got)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	huge := TaskRequestMsg(NewTaskRequest("", strings.Repeat("x", MaxMessageBytes+1), nil))
	if err := WriteFrame(&buf, huge); err == nil {
		t.Fatalf("expected an error for a payload over MaxMessageBytes")
	}
}

func TestReadFrameRejectsTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, AckResponse()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-1])

	var got Response
	if err := ReadFrame(truncated, &got); err == nil {
		t.Fatalf("expected an error reading a truncated frame")
	}
}

func TestAckRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, AckResponse()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var got Response
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Kind != ResponseAck {
		t.Fatalf("expected an ack response, got %+v", got)
	}
}

// cborRoundTrip asserts decode(encode(v)) == v for a single value, the
// testable property every wire type must satisfy.
func cborRoundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	raw, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal: %v", err)
	}
	var got T
	if err := cbor.Unmarshal(raw, &got); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	return got
}

func TestAgentCardCBORRoundTrip(t *testing.T) {
	card := roster.AgentCard{
		PeerID:       identity.PeerID("12D3KooWtest"),
		DisplayName:  "electrical-engineer",
		Description:  "handles PCB layout review",
		Capabilities: []string{"electrical", "pcb-layout"},
		Version:      "0.1.0",
	}
	got := cborRoundTrip(t, card)
	if !reflect.DeepEqual(card, got) {
		t.Fatalf("AgentCard round trip mismatch:\n  sent: %+v\n  got:  %+v", card, got)
	}
}

func TestContentBlockCBORRoundTrip(t *testing.T) {
	cases := []ContentBlock{
		TextBlock("hello"),
		ImageBlock([]byte{0x00, 0xff, 0x10, 0xde, 0xad, 0xbe, 0xef}, "image/png", "high"),
		ImageBlock([]byte{}, "image/jpeg", ""),
		JSONBlock(map[string]any{"a": float64(1), "b": "two"}),
	}
	for _, want := range cases {
		got := cborRoundTrip(t, want)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("ContentBlock round trip mismatch:\n  sent: %+v\n  got:  %+v", want, got)
		}
	}
}

func TestTaskRequestCBORRoundTrip(t *testing.T) {
	req := NewTaskRequest("room-42", "ping", []ContentBlock{TextBlock("hello")})
	got := cborRoundTrip(t, req)
	if !reflect.DeepEqual(req, got) {
		t.Fatalf("TaskRequest round trip mismatch:\n  sent: %+v\n  got:  %+v", req, got)
	}
}

func TestTaskResponseCBORRoundTrip(t *testing.T) {
	resp := TaskResponse{
		RequestID: "11111111-1111-1111-1111-111111111111",
		Agent: roster.AgentCard{
			PeerID:      identity.PeerID("12D3KooWresponder"),
			DisplayName: "responder",
			Version:     "0.1.0",
		},
		Result:     []ContentBlock{TextBlock("pong")},
		Status:     Completed(),
		DurationMs: 42,
	}
	got := cborRoundTrip(t, resp)
	if !reflect.DeepEqual(resp, got) {
		t.Fatalf("TaskResponse round trip mismatch:\n  sent: %+v\n  got:  %+v", resp, got)
	}

	failed := TaskResponse{RequestID: resp.RequestID, Agent: resp.Agent, Status: Failed("boom")}
	gotFailed := cborRoundTrip(t, failed)
	if !reflect.DeepEqual(failed, gotFailed) {
		t.Fatalf("failed TaskResponse round trip mismatch:\n  sent: %+v\n  got:  %+v", failed, gotFailed)
	}
}

func TestP2pRequestCBORRoundTrip(t *testing.T) {
	card := roster.AgentCard{PeerID: identity.PeerID("12D3KooWannouncer"), DisplayName: "announcer"}
	announce := AnnounceRequest(card)
	gotAnnounce := cborRoundTrip(t, announce)
	if !reflect.DeepEqual(announce, gotAnnounce) {
		t.Fatalf("Announce Request round trip mismatch:\n  sent: %+v\n  got:  %+v", announce, gotAnnounce)
	}

	task := TaskRequestMsg(NewTaskRequest("room-1", "ping", []ContentBlock{TextBlock("hello")}))
	gotTask := cborRoundTrip(t, task)
	if !reflect.DeepEqual(task, gotTask) {
		t.Fatalf("Task Request round trip mismatch:\n  sent: %+v\n  got:  %+v", task, gotTask)
	}
}

func TestP2pResponseCBORRoundTrip(t *testing.T) {
	ack := AckResponse()
	gotAck := cborRoundTrip(t, ack)
	if !reflect.DeepEqual(ack, gotAck) {
		t.Fatalf("Ack Response round trip mismatch:\n  sent: %+v\n  got:  %+v", ack, gotAck)
	}

	result := TaskResultResponse(TaskResponse{
		RequestID: "22222222-2222-2222-2222-222222222222",
		Agent:     roster.AgentCard{PeerID: identity.PeerID("12D3KooWresponder"), DisplayName: "responder"},
		Result:    []ContentBlock{TextBlock("pong")},
		Status:    Completed(),
	})
	gotResult := cborRoundTrip(t, result)
	if !reflect.DeepEqual(result, gotResult) {
		t.Fatalf("TaskResult Response round trip mismatch:\n  sent: %+v\n  got:  %+v", result, gotResult)
	}
}

// TestPingPongScenario exercises the example scenario end-to-end at the
// CBOR layer: a Task("ping", payload=[Text("hello")]) answered by
// TaskResponse{status:Completed, result:[Text("pong")]}, with the response
// decoding byte-for-byte equal to the value the responder serialized.
func TestPingPongScenario(t *testing.T) {
	responderCard := roster.AgentCard{PeerID: identity.PeerID("12D3KooWb"), DisplayName: "B"}

	var buf bytes.Buffer
	req := TaskRequestMsg(NewTaskRequest("room-1", "ping", []ContentBlock{TextBlock("hello")}))
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame request: %v", err)
	}

	var gotReq Request
	if err := ReadFrame(&buf, &gotReq); err != nil {
		t.Fatalf("ReadFrame request: %v", err)
	}
	if gotReq.Kind != RequestTask || gotReq.Task == nil {
		t.Fatalf("expected a task request, got %+v", gotReq)
	}
	if gotReq.Task.Description != "ping" {
		t.Fatalf("expected description %q, got %q", "ping", gotReq.Task.Description)
	}
	if text, ok := gotReq.Task.Payload[0].AsText(); !ok || text != "hello" {
		t.Fatalf("expected payload [Text(hello)], got %+v", gotReq.Task.Payload)
	}

	sent := TaskResultResponse(TaskResponse{
		RequestID:  gotReq.Task.ID,
		Agent:      responderCard,
		Result:     []ContentBlock{TextBlock("pong")},
		Status:     Completed(),
		DurationMs: 5,
	})
	var respBuf bytes.Buffer
	if err := WriteFrame(&respBuf, sent); err != nil {
		t.Fatalf("WriteFrame response: %v", err)
	}

	var gotResp Response
	if err := ReadFrame(&respBuf, &gotResp); err != nil {
		t.Fatalf("ReadFrame response: %v", err)
	}
	if !reflect.DeepEqual(sent, gotResp) {
		t.Fatalf("response did not decode byte-for-byte equal to what was sent:\n  sent: %+v\n  got:  %+v", sent, gotResp)
	}
	if gotResp.TaskResult.Status.State != StateCompleted {
		t.Fatalf("expected Completed status, got %+v", gotResp.TaskResult.Status)
	}
	if gotResp.TaskResult.Text() != "pong" {
		t.Fatalf("expected result text %q, got %q", "pong", gotResp.TaskResult.Text())
	}
	if gotResp.TaskResult.DurationMs < 0 {
		t.Fatalf("expected a non-negative duration, got %d", gotResp.TaskResult.DurationMs)
	}
}
