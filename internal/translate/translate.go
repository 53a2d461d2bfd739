// Package translate turns a free-text audience description into a candidate
// rule document.
//
// Translators are untrusted collaborators: their output is a raw JSON
// document that callers must pass through rules.Accept before use.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoTranslation indicates no translator produced a document.
var ErrNoTranslation = errors.New("no translator produced a rule document")

// Translator converts a query into an untrusted rule document.
type Translator interface {
	Name() string
	Translate(ctx context.Context, query string) (json.RawMessage, error)
}

// Result is a document with the name of the translator that produced it.
type Result struct {
	Document json.RawMessage
	Source   string
}

// Chain tries translators in order and returns the first success.
type Chain struct {
	translators []Translator
	logger      *slog.Logger
}

// NewChain builds a chain; nil translators are skipped.
func NewChain(logger *slog.Logger, translators ...Translator) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, t := range translators {
		if t != nil {
			c.translators = append(c.translators, t)
		}
	}
	return c
}

// Translate runs the chain.
func (c *Chain) Translate(ctx context.Context, query string) (Result, error) {
	var errs []error
	for _, t := range c.translators {
		doc, err := t.Translate(ctx, query)
		if err == nil {
			return Result{Document: doc, Source: t.Name()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		c.logger.Warn("translator failed, trying next", "translator", t.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
	}
	return Result{}, errors.Join(append([]error{ErrNoTranslation}, errs...)...)
}
