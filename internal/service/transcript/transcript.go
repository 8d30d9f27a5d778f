// Package transcript accumulates the turns of one call's conversation and
// renders them as the prompt context for the language backend.
package transcript

import "strings"

// Speaker identifies who produced a turn.
type Speaker int

const (
	SpeakerCaller Speaker = iota
	SpeakerAssistant
)

// Label is the prefix a speaker's turns carry in the rendered transcript.
func (s Speaker) Label() string {
	if s == SpeakerAssistant {
		return "Model"
	}
	return "User"
}

func (s Speaker) String() string {
	if s == SpeakerAssistant {
		return "assistant"
	}
	return "caller"
}

// Turn is one utterance.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Accumulator is the append-only transcript of a call. It is owned by a
// single session and is not safe for concurrent use.
//
// There is no size limit; a very long call grows the rendered prompt
// without bound.
type Accumulator struct {
	turns []Turn
}

// New returns an empty transcript.
func New() *Accumulator {
	return &Accumulator{}
}

// Append adds one turn.
func (a *Accumulator) Append(speaker Speaker, text string) {
	a.turns = append(a.turns, Turn{Speaker: speaker, Text: text})
}

// Render returns every turn in order, one "Label: text" line each.
func (a *Accumulator) Render() string {
	var b strings.Builder
	for _, t := range a.turns {
		b.WriteString(t.Speaker.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Turns returns a copy of the turns.
func (a *Accumulator) Turns() []Turn {
	return append([]Turn(nil), a.turns...)
}

// Len returns the number of turns.
func (a *Accumulator) Len() int {
	return len(a.turns)
}

// Count returns the number of turns by speaker.
func (a *Accumulator) Count(speaker Speaker) int {
	n := 0
	for _, t := range a.turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}
