// Package pipeline drives retrieval, parsing and diagnosis of log bodies
// through ordered, predicate-gated stage registries.
package pipeline

import (
	"context"
	"net/url"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// Kind names one of the three stage registries.
type Kind string

const (
	KindRetriever Kind = "retriever"
	KindParser    Kind = "parser"
	KindProcessor Kind = "processor"
)

// Order is a coarse priority. Lower values run first.
type Order int

const (
	Earliest Order = iota - 2
	Earlier
	Default
	Later
	Latest
)

func (o Order) String() string {
	switch o {
	case Earliest:
		return "earliest"
	case Earlier:
		return "earlier"
	case Default:
		return "default"
	case Later:
		return "later"
	case Latest:
		return "latest"
	}
	return "unknown"
}

// Descriptor identifies a stage to global predicates.
type Descriptor struct {
	Kind       Kind
	Identifier string
	Order      Order
}

// Event is the context an analysis was requested from. The pipeline only
// hands it to predicates.
type Event struct {
	Source     string
	Channel    string
	Author     string
	Attributes map[string]string
}

// Stage is what every registry entry exposes.
type Stage interface {
	Identifier() string
	Order() Order
}

// Retriever turns a URL into zero or more raw bodies.
type Retriever interface {
	Stage
	Applies(u *url.URL, ev Event, snap *remoteconfig.Snapshot) bool
	Fetch(ctx context.Context, u *url.URL, snap *remoteconfig.Snapshot) ([]string, error)
}

// Parser extracts facts from a log's content into the log.
type Parser interface {
	Stage
	Applies(log *logs.Log, ev Event) bool
	Parse(log *logs.Log) error
}

// Processor reads extracted facts and appends findings.
type Processor interface {
	Stage
	Applies(log *logs.Log, ev Event) bool
	Process(log *logs.Log) error
}

// LogStage adapts plain functions to both Parser and Processor. A nil When
// always applies.
type LogStage struct {
	ID   string
	At   Order
	When func(log *logs.Log, ev Event) bool
	Run  func(log *logs.Log) error
}

func (s LogStage) Identifier() string { return s.ID }
func (s LogStage) Order() Order       { return s.At }

func (s LogStage) Applies(log *logs.Log, ev Event) bool {
	return s.When == nil || s.When(log, ev)
}

func (s LogStage) Parse(log *logs.Log) error   { return s.run(log) }
func (s LogStage) Process(log *logs.Log) error { return s.run(log) }

func (s LogStage) run(log *logs.Log) error {
	if s.Run == nil {
		return nil
	}
	return s.Run(log)
}
