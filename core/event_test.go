package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEventKind_IsTerminal(t *testing.T) {
	terminal := []EventKind{EventStop, EventError, EventTimeout, EventAgentEnd}
	for _, k := range terminal {
		if !k.IsTerminal() {
			t.Fatalf("%s should be terminal", k)
		}
	}

	nonTerminal := []EventKind{EventPing, EventAgentMessage, EventAgentThought, EventAgentAction, EventDatasetRetrieval, EventLongTermMemoryRecall}
	for _, k := range nonTerminal {
		if k.IsTerminal() {
			t.Fatalf("%s should not be terminal", k)
		}
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("task-1", EventAgentMessage)
	if ev.ID == "" {
		t.Fatal("expected generated id")
	}
	if ev.TaskID != "task-1" {
		t.Fatalf("unexpected task id %q", ev.TaskID)
	}
	if ev.CreatedAt.IsZero() {
		t.Fatal("expected creation timestamp")
	}

	other := NewEvent("task-1", EventAgentMessage)
	if other.ID == ev.ID {
		t.Fatal("ids must be unique per event")
	}
}

func TestNewErrorEvent(t *testing.T) {
	ev := NewErrorEvent("task-1", errors.New("boom"))
	if ev.Kind != EventError {
		t.Fatalf("unexpected kind %s", ev.Kind)
	}
	if ev.Observation != "boom" {
		t.Fatalf("unexpected observation %q", ev.Observation)
	}
}

func TestEvent_JSONShape(t *testing.T) {
	ev := NewEvent("task-1", EventAgentMessage)
	ev.Answer = "hi"

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["event"] != string(EventAgentMessage) {
		t.Fatalf("kind must serialize under \"event\", got %v", decoded["event"])
	}
	if decoded["task_id"] != "task-1" {
		t.Fatalf("unexpected task_id %v", decoded["task_id"])
	}
}
