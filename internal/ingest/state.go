// Package ingest drives a codebase from selection through reading, symbol
// retrieval and processing, publishing every state it passes through.
package ingest

import (
	"errors"
	"fmt"

	"github.com/morozRed/codescape/internal/codebase"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRunInProgress     = errors.New("ingestion already in progress")
	ErrNoCodebase        = errors.New("no codebase located")
)

type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseLocated
	PhaseRetrieving
	PhaseRetrieved
	PhaseProcessingCodebase
	PhaseProcessingArchitecture
	PhaseFailed
	PhaseCanceled
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseLocated:
		return "locatedCodebase"
	case PhaseRetrieving:
		return "retrievingCodebase"
	case PhaseRetrieved:
		return "retrievedCodebase"
	case PhaseProcessingCodebase:
		return "processingCodebase"
	case PhaseProcessingArchitecture:
		return "processingArchitecture"
	case PhaseFailed:
		return "failed"
	case PhaseCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func (p Phase) processing() bool {
	return p == PhaseProcessingCodebase || p == PhaseProcessingArchitecture
}

// Terminal reports whether a new Locate is required to leave p.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseCanceled
}

// State is a tagged variant: which fields are meaningful depends on Phase.
//
//	located:     Location
//	retrieving:  Location, Progress
//	retrieved:   Location, Folder
//	processing*: Location, Folder, Completed, Total
//	failed:      Location, Message
//	canceled:    Location, Message
type State struct {
	Phase     Phase
	Location  codebase.Location
	Progress  string
	Folder    *codebase.Folder
	Completed int
	Total     int
	Message   string
}

func (s State) String() string {
	switch s.Phase {
	case PhaseRetrieving:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Progress)
	case PhaseProcessingCodebase, PhaseProcessingArchitecture:
		return fmt.Sprintf("%s(%d/%d)", s.Phase, s.Completed, s.Total)
	case PhaseFailed, PhaseCanceled:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Message)
	default:
		return s.Phase.String()
	}
}

// Event is an input to Next.
type Event interface {
	eventName() string
}

type LocateEvent struct{ Location codebase.Location }
type ProgressEvent struct{ Text string }
type RetrievedEvent struct{ Folder *codebase.Folder }
type FailEvent struct{ Message string }
type CancelEvent struct{ Message string }
type ProcessEvent struct {
	Stage     Phase
	Completed int
	Total     int
}

func (LocateEvent) eventName() string    { return "locate" }
func (ProgressEvent) eventName() string  { return "progress" }
func (RetrievedEvent) eventName() string { return "retrieved" }
func (FailEvent) eventName() string      { return "fail" }
func (CancelEvent) eventName() string    { return "cancel" }
func (ProcessEvent) eventName() string   { return "process" }

func Locate(loc codebase.Location) Event      { return LocateEvent{Location: loc} }
func Progress(text string) Event              { return ProgressEvent{Text: text} }
func Retrieved(folder *codebase.Folder) Event { return RetrievedEvent{Folder: folder} }
func Fail(message string) Event               { return FailEvent{Message: message} }
func Cancel(message string) Event             { return CancelEvent{Message: message} }

func Process(stage Phase, completed, total int) Event {
	return ProcessEvent{Stage: stage, Completed: completed, Total: total}
}

// Next returns the state that follows cur on ev. It never mutates cur; an
// event the current phase does not accept yields cur and ErrInvalidTransition.
func Next(cur State, ev Event) (State, error) {
	invalid := func(reason string) (State, error) {
		if reason != "" {
			reason = ": " + reason
		}
		return cur, fmt.Errorf("%w: %s in %s%s", ErrInvalidTransition, ev.eventName(), cur.Phase, reason)
	}

	switch e := ev.(type) {
	case LocateEvent:
		if e.Location.IsZero() {
			return invalid("zero location")
		}
		switch cur.Phase {
		case PhaseEmpty, PhaseLocated, PhaseRetrieved, PhaseFailed, PhaseCanceled:
			return State{Phase: PhaseLocated, Location: e.Location}, nil
		}

	case ProgressEvent:
		switch cur.Phase {
		case PhaseLocated, PhaseRetrieving:
			return State{Phase: PhaseRetrieving, Location: cur.Location, Progress: e.Text}, nil
		}

	case RetrievedEvent:
		if e.Folder == nil {
			return invalid("nil folder")
		}
		if cur.Phase == PhaseRetrieving || cur.Phase.processing() {
			return State{Phase: PhaseRetrieved, Location: cur.Location, Folder: e.Folder}, nil
		}

	case FailEvent:
		if cur.Phase == PhaseRetrieving || cur.Phase.processing() {
			return State{Phase: PhaseFailed, Location: cur.Location, Message: e.Message}, nil
		}

	case CancelEvent:
		if cur.Phase == PhaseRetrieving || cur.Phase.processing() {
			return State{Phase: PhaseCanceled, Location: cur.Location, Message: e.Message}, nil
		}

	case ProcessEvent:
		if !e.Stage.processing() {
			return invalid("not a processing stage: " + e.Stage.String())
		}
		if cur.Phase == PhaseRetrieved || cur.Phase == e.Stage {
			return State{
				Phase:     e.Stage,
				Location:  cur.Location,
				Folder:    cur.Folder,
				Completed: e.Completed,
				Total:     e.Total,
			}, nil
		}

	default:
		return cur, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
	return invalid("")
}
