package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
)

func feed(events ...core.Event) <-chan core.Event {
	ch := make(chan core.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func event(id string, kind core.EventKind) core.Event {
	ev := core.NewEvent("task-1", kind)
	if id != "" {
		ev.ID = id
	}
	return ev
}

func TestAggregate_MessageGrouping(t *testing.T) {
	prompt := []core.Message{core.NewUserMessage("hi")}
	m1 := event("msg-1", core.EventAgentMessage)
	m1.Answer = "Hel"
	m1.Message = prompt
	m2 := event("msg-1", core.EventAgentMessage)
	m2.Answer = "lo"
	m2.Message = prompt
	m3 := event("msg-1", core.EventAgentMessage)
	m3.Answer = " world"
	m3.Message = prompt

	result := Aggregate("hi", feed(m1, m2, m3, event("", core.EventAgentEnd)))

	assert.Equal(t, "Hello world", result.Answer)
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)

	// One group plus the terminal event.
	require.Len(t, result.Events, 2)
	assert.Equal(t, "Hello world", result.Events[0].Answer)
	assert.Equal(t, []core.Message{core.NewUserMessage("hi")}, result.Message)
}

func TestAggregate_PingDropped(t *testing.T) {
	result := Aggregate("q", feed(
		event("", core.EventPing),
		event("", core.EventPing),
		event("", core.EventAgentEnd),
	))
	require.Len(t, result.Events, 1)
	assert.Equal(t, core.EventAgentEnd, result.Events[0].Kind)
}

func TestAggregate_OverwriteByID(t *testing.T) {
	a1 := event("act-1", core.EventAgentAction)
	a1.Observation = "first"
	a2 := event("act-1", core.EventAgentAction)
	a2.Observation = "second"

	result := Aggregate("q", feed(a1, a2, event("", core.EventAgentEnd)))

	require.Len(t, result.Events, 2)
	assert.Equal(t, "second", result.Events[0].Observation)
}

func TestAggregate_StatusMirrorsTerminal(t *testing.T) {
	stop := Aggregate("q", feed(event("", core.EventStop)))
	assert.Equal(t, core.ResultStatusStopped, stop.Status)

	timeout := Aggregate("q", feed(event("", core.EventTimeout)))
	assert.Equal(t, core.ResultStatusTimeout, timeout.Status)

	errEv := event("", core.EventError)
	errEv.Observation = "boom"
	failed := Aggregate("q", feed(errEv))
	assert.Equal(t, core.ResultStatusError, failed.Status)
	assert.Equal(t, "boom", failed.Error)

	// No terminal at all (listener cancelled) defaults to succeeded.
	empty := Aggregate("q", feed())
	assert.Equal(t, core.ResultStatusSucceeded, empty.Status)
}

func TestAggregate_LatencySum(t *testing.T) {
	th := event("th-1", core.EventAgentThought)
	th.Latency = 1.5
	act := event("act-1", core.EventAgentAction)
	act.Latency = 0.5
	end := event("", core.EventAgentEnd)
	end.Latency = 2.0

	result := Aggregate("q", feed(th, act, end))
	assert.InDelta(t, 4.0, result.Latency, 1e-9)
}
