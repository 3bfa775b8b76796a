// Package graphtest provides a scripted in-memory Store for package tests.
//
// The fake matches incoming queries against registered substring stubs and
// records every write so tests can assert on query text, parameters, and
// ordering without a live graph database.
package graphtest

import (
	"context"
	"strings"
	"sync"
)

// Call records one query or write issued against the fake.
type Call struct {
	Query  string
	Params map[string]any
}

type stub struct {
	substr string
	rows   []map[string]any
	err    error
}

// FakeStore is a scripted graph.Store implementation.
type FakeStore struct {
	mu      sync.Mutex
	stubs   []stub
	Queries []Call
	Writes  []Call

	// WriteErr, when set, is returned by every ExecuteWrite.
	WriteErr error
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// StubQuery registers result rows for any query containing substr. Stubs are
// matched in registration order; the first match wins.
func (f *FakeStore) StubQuery(substr string, rows []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{substr: substr, rows: rows})
}

// StubQueryErr registers an error for any query containing substr.
func (f *FakeStore) StubQueryErr(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{substr: substr, err: err})
}

// ExecuteQuery returns the first matching stub's rows, or no rows when
// nothing matches.
func (f *FakeStore) ExecuteQuery(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, Call{Query: query, Params: params})
	for _, s := range f.stubs {
		if strings.Contains(query, s.substr) {
			if s.err != nil {
				return nil, s.err
			}
			return s.rows, nil
		}
	}
	return nil, nil
}

// ExecuteWrite records the write.
func (f *FakeStore) ExecuteWrite(_ context.Context, query string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Writes = append(f.Writes, Call{Query: query, Params: params})
	return nil
}

// InitSchema is a no-op.
func (f *FakeStore) InitSchema(context.Context) error { return nil }

// Close is a no-op.
func (f *FakeStore) Close(context.Context) error { return nil }

// WritesContaining returns the recorded writes whose query contains substr.
func (f *FakeStore) WritesContaining(substr string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, w := range f.Writes {
		if strings.Contains(w.Query, substr) {
			out = append(out, w)
		}
	}
	return out
}
