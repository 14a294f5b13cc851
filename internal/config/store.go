// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Store holds the current value of every option in a table. It is safe for
// concurrent use. Reads and writes of an unknown ID, or a write of the wrong
// kind, are programming errors and panic.
type Store struct {
	table  *Table
	logger *slog.Logger

	mu     sync.RWMutex
	values []Value
}

// NewStore creates a store seeded with the table's defaults.
func NewStore(table *Table, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		table:  table,
		logger: logger.With("component", "config"),
		values: make([]Value, len(table.opts)),
	}
	for i, o := range table.opts {
		s.values[i] = o.Default
	}
	return s
}

// Table returns the option table.
func (s *Store) Table() *Table {
	return s.table
}

// Get returns the current value of an option.
func (s *Store) Get(id ID) Value {
	s.table.Option(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id-1]
}

// Set changes the value of an option.
func (s *Store) Set(id ID, v Value) {
	o := s.table.Option(id)
	if v.Kind != o.Kind() {
		panic(fmt.Sprintf("config: %s is %s, set with %s", o.Name, o.Kind(), v.Kind))
	}
	s.mu.Lock()
	s.values[id-1] = v
	s.mu.Unlock()
}

func (s *Store) typed(id ID, k Kind) Value {
	v := s.Get(id)
	if v.Kind != k {
		panic(fmt.Sprintf("config: %s is %s, read as %s", s.table.Option(id).Name, v.Kind, k))
	}
	return v
}

// Int returns an integer option.
func (s *Store) Int(id ID) int64 { return s.typed(id, KindInt).Int }

// Float returns a float option.
func (s *Store) Float(id ID) float64 { return s.typed(id, KindFloat).Float }

// Bool returns a boolean option.
func (s *Store) Bool(id ID) bool { return s.typed(id, KindBool).Bool }

// String returns a string option.
func (s *Store) String(id ID) string { return s.typed(id, KindString).Str }

// ParseLine applies one bootstrap line. Blank lines and comments return
// (false, nil).
func (s *Store) ParseLine(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}

	name, text, ok := strings.Cut(line, "=")
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	name = strings.TrimSpace(name)

	o, ok := s.table.Lookup(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	v, err := o.Parse(text)
	if err != nil {
		return false, err
	}

	s.logger.Debug("setting option", "id", o.ID, "name", o.Name, "value", v)
	s.Set(o.ID, v)
	return true, nil
}

// Bootstrap applies every line of r. Bad lines are logged and skipped; only
// a read error is returned.
func (s *Store) Bootstrap(r io.Reader) (int, error) {
	applied := 0
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		ok, err := s.ParseLine(scanner.Text())
		if err != nil {
			s.logger.Warn("skipping configuration line", "line", lineNo, "err", err)
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, scanner.Err()
}

// BootstrapFile applies the bootstrap file at path.
func (s *Store) BootstrapFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.Bootstrap(f)
}

// Entry is one option with its current value.
type Entry struct {
	Option Option
	Value  Value
}

// Snapshot returns every option with its current value, in ID order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.values))
	for i, v := range s.values {
		out[i] = Entry{Option: s.table.opts[i], Value: v}
	}
	return out
}

// Dump logs the current configuration.
func (s *Store) Dump() {
	s.logger.Info("current configuration")
	for _, e := range s.Snapshot() {
		s.logger.Info(fmt.Sprintf("    %d %s = %s", e.Option.ID, e.Option.Name, e.Value))
	}
}

// WriteTo writes the current configuration in bootstrap format.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range s.Snapshot() {
		n, err := fmt.Fprintf(w, "%s = %s\n", e.Option.Name, e.Value)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
