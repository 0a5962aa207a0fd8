// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"context"
	"log/slog"
)

// Keys for the structured attributes emitted by the App's built-in logging. Kept as named
// constants so callers post-processing logs (or asserting on them in tests) don't have to
// hardcode the strings.
const (
	LoggerPhaseKey  = "phase"
	LoggerNodeKey   = "node"
	LoggerParentKey = "parent"
	LoggerChildKey  = "child"
)

// discardHandler is used when the caller never configures WithLogger. It mirrors slog.DiscardHandler
// semantics without requiring Go 1.24 (slog.DiscardHandler lands in 1.24).
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h discardHandler) WithGroup(string) slog.Handler            { return h }

func defaultLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

// logUnknownPhase logs the "unknown phase" condition described in spec §7: dirty() on an
// unregistered phase is a warning, not an error, and the node is silently dropped.
func (app *App) logUnknownPhase(phase string, node NodeID) {
	app.logger.LogAttrs(context.Background(), slog.LevelWarn, "dirty: unknown phase",
		slog.String(LoggerPhaseKey, phase),
		slog.String(LoggerNodeKey, string(node)),
	)
}

// logCycleRejected logs the "cycle attempt" condition described in spec §7: AddEdge returns
// false rather than raising an error, but the rejection is still observable via logs. err
// carries the full cycle path (when one could be reconstructed) for diagnostics.
func (app *App) logCycleRejected(err *CycleError) {
	app.logger.LogAttrs(context.Background(), slog.LevelWarn, err.Error(),
		slog.String(LoggerParentKey, string(err.Parent)),
		slog.String(LoggerChildKey, string(err.Child)),
	)
}
