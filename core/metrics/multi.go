package metrics

// MultiSink fans records out to multiple sinks. Optional record kinds are
// forwarded only to sinks that implement them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the record to all sinks, returning the first error.
func (m *MultiSink) RecordRun(rec RunRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordPublication forwards publication records to capable sinks.
func (m *MultiSink) RecordPublication(rec PublicationRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(PublicationRecorder); ok {
			if err := r.RecordPublication(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTrigger forwards trigger records to capable sinks.
func (m *MultiSink) RecordTrigger(rec TriggerRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(TriggerRecorder); ok {
			if err := r.RecordTrigger(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFallback forwards fallback records to capable sinks.
func (m *MultiSink) RecordFallback(rec FallbackRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(FallbackRecorder); ok {
			if err := r.RecordFallback(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
