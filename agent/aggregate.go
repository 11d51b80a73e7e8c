package agent

import "github.com/hupe1980/agentstream/core"

// Aggregate folds a task's event stream into its blocking-call result. It
// consumes the channel to exhaustion, so it returns once the task has
// terminated or the listener was cancelled.
//
// Folding rules: heartbeats are dropped; message events sharing an id form
// one group whose answer and thought text concatenate in arrival order while
// latency and the prompt snapshot take the latest value; any other repeated
// id overwrites the stored event. The result status mirrors the terminal
// event kind and defaults to succeeded. Latency is the sum over the stored
// groups.
func Aggregate(query string, events <-chan core.Event) core.AgentResult {
	result := core.AgentResult{
		Query:  query,
		Status: core.ResultStatusSucceeded,
	}
	index := make(map[string]int)

	for ev := range events {
		switch ev.Kind {
		case core.EventPing:
			continue
		case core.EventStop:
			result.Status = core.ResultStatusStopped
		case core.EventTimeout:
			result.Status = core.ResultStatusTimeout
		case core.EventError:
			result.Status = core.ResultStatusError
			result.Error = ev.Observation
		case core.EventAgentEnd:
			result.Status = core.ResultStatusSucceeded
		}

		if ev.Kind == core.EventAgentMessage {
			result.Answer += ev.Answer
		}

		i, seen := index[ev.ID]
		if !seen {
			index[ev.ID] = len(result.Events)
			result.Events = append(result.Events, ev)
			continue
		}
		if ev.Kind == core.EventAgentMessage {
			result.Events[i].Answer += ev.Answer
			result.Events[i].Thought += ev.Thought
			result.Events[i].Latency = ev.Latency
			result.Events[i].Message = ev.Message
		} else {
			result.Events[i] = ev
		}
	}

	for _, ev := range result.Events {
		result.Latency += ev.Latency
		if result.Message == nil && ev.Kind == core.EventAgentMessage && len(ev.Message) > 0 {
			result.Message = ev.Message
		}
	}

	return result
}
