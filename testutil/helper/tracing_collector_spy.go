package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

type spanKey struct{}

// SpySpanContext implements subsystem.SpanContext for testing tracing functionality.
type SpySpanContext struct {
	name       string
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements subsystem.SpanContext.
func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// AddAttribute implements subsystem.SpanContext.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attributes == nil {
		c.attributes = make(map[string]string)
	}
	c.attributes[key] = value
}

// GetStatus returns the status set through SetStatus.
func (c *SpySpanContext) GetStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GetAttributes returns a copy of the attributes added through AddAttribute.
func (c *SpySpanContext) GetAttributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	attrs := make(map[string]string, len(c.attributes))
	for k, v := range c.attributes {
		attrs[k] = v
	}
	return attrs
}

// SpySpanRecord represents a recorded span for testing.
type SpySpanRecord struct {
	Name            string
	Parent          string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	FinishCount     int
	SpanContext     *SpySpanContext
}

// TracingCollectorSpy is a subsystem.TracingCollector that captures spans for testing.
// The started span is stored in the returned context, so child spans record their parent's name.
type TracingCollectorSpy struct {
	spanRecords []SpySpanRecord
	mu          sync.Mutex
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{spanRecords: make([]SpySpanRecord, 0)}
}

// StartSpan implements subsystem.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, subsystem.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := ""
	if parentSpan, ok := ctx.Value(spanKey{}).(*SpySpanContext); ok {
		parent = parentSpan.name
	}

	spanCtx := &SpySpanContext{name: name, attributes: make(map[string]string)}

	s.spanRecords = append(s.spanRecords, SpySpanRecord{
		Name:            name,
		Parent:          parent,
		StartAttributes: copyAttributes(attrs),
		SpanContext:     spanCtx,
	})

	return context.WithValue(ctx, spanKey{}, spanCtx), spanCtx
}

// FinishSpan implements subsystem.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx subsystem.SpanContext, status string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spySpan, ok := spanCtx.(*SpySpanContext)
	if !ok {
		return
	}

	for i := range s.spanRecords {
		if s.spanRecords[i].SpanContext == spySpan {
			s.spanRecords[i].Status = status
			s.spanRecords[i].EndAttributes = copyAttributes(attrs)
			s.spanRecords[i].FinishCount++
			break
		}
	}
}

// GetSpanRecords returns a copy of all captured span records.
func (s *TracingCollectorSpy) GetSpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpySpanRecord, len(s.spanRecords))
	copy(records, s.spanRecords)

	return records
}

// GetSpanRecordCount returns the number of captured spans.
func (s *TracingCollectorSpy) GetSpanRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.spanRecords)
}

// GetSpanNames returns the names of all captured spans in start order.
func (s *TracingCollectorSpy) GetSpanNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.spanRecords))
	for _, record := range s.spanRecords {
		names = append(names, record.Name)
	}

	return names
}

// AllSpansFinishedOnce reports whether every started span was finished exactly once.
func (s *TracingCollectorSpy) AllSpansFinishedOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.spanRecords {
		if record.FinishCount != 1 {
			return false
		}
	}

	return true
}

// Reset clears all captured span records.
func (s *TracingCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spanRecords = s.spanRecords[:0]
}

// SpanRecordMatcher provides a fluent interface for checking span records.
type SpanRecordMatcher struct {
	found  bool
	record SpySpanRecord
}

// HasSpanRecordForName starts a fluent chain to check the first span with the given name.
func (s *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.spanRecords {
		if record.Name == name {
			return &SpanRecordMatcher{found: true, record: record}
		}
	}

	return &SpanRecordMatcher{found: false}
}

// WithStatus checks the status the span was finished with.
func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	if m.found && m.record.Status != status {
		m.found = false
	}

	return m
}

// WithParent checks the name of the span the span was started under.
func (m *SpanRecordMatcher) WithParent(parent string) *SpanRecordMatcher {
	if m.found && m.record.Parent != parent {
		m.found = false
	}

	return m
}

// WithStartAttribute checks an attribute passed to StartSpan.
func (m *SpanRecordMatcher) WithStartAttribute(key, value string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	if attrValue, exists := m.record.StartAttributes[key]; !exists || attrValue != value {
		m.found = false
	}

	return m
}

// WithEndAttribute checks an attribute passed to FinishSpan.
func (m *SpanRecordMatcher) WithEndAttribute(key, value string) *SpanRecordMatcher {
	if !m.found {
		return m
	}

	if attrValue, exists := m.record.EndAttributes[key]; !exists || attrValue != value {
		m.found = false
	}

	return m
}

// Assert returns true if all conditions in the fluent chain were met.
func (m *SpanRecordMatcher) Assert() bool {
	return m.found
}

func copyAttributes(attrs map[string]string) map[string]string {
	attrsCopy := make(map[string]string, len(attrs))
	for k, v := range attrs {
		attrsCopy[k] = v
	}

	return attrsCopy
}

var _ subsystem.TracingCollector = (*TracingCollectorSpy)(nil)
