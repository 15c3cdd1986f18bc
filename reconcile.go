package nodemux

// reconcileLocked resets the native handle and replays the table onto it.
//
// The handle has no per-target removal, so whenever a target leaves the
// table the only way to stop observing it is to stop everything and
// start the rest again. On return the handle observes exactly the
// targets left in m.entries; a target the handle refuses to restart is
// dropped from the table and reported.
func (m *Multiplexer[T]) reconcileLocked() []Diagnostic {
	var diags []Diagnostic
	if err := m.handle.StopAll(); err != nil {
		diags = append(diags, Diagnostic{
			Code:    DiagnosticStopFailed,
			Message: "failed to stop native observer",
			Err:     err,
		})
	}

	for target, e := range m.entries {
		if err := m.handle.Start(target, e.opts); err != nil {
			delete(m.entries, target)
			diags = append(diags, Diagnostic{
				Code:    DiagnosticStartFailed,
				Message: "native observer refused target on restart; listeners dropped",
				Target:  target,
				Err:     err,
			})
		}
	}

	m.logger.Debug().Int("targets", len(m.entries)).Msg("nodemux: reconciled native observer")
	return diags
}
