package reporting

import (
	"strings"
	"sync"
	"time"

	"onionctl/pkg/logging"
)

// EventHandler is a function that processes events
type EventHandler func(Event)

// EventFilter is a function that determines if an event should be processed
type EventFilter func(Event) bool

const handlerQueueSize = 256

// EventSubscription represents a subscription to events. Handler subscriptions get their
// own delivery goroutine so a handler observes events in publish order.
type EventSubscription struct {
	ID      string
	Filter  EventFilter
	Handler EventHandler
	Channel chan Event
	Closed  bool
	mu      sync.RWMutex

	queue chan Event
	done  chan struct{}
}

// Close closes the subscription
func (s *EventSubscription) Close() {
	s.mu.Lock()
	if s.Closed {
		s.mu.Unlock()
		return
	}
	s.Closed = true
	if s.Channel != nil {
		close(s.Channel)
	}
	if s.queue != nil {
		close(s.queue)
	}
	s.mu.Unlock()
}

// IsClosed returns whether the subscription is closed
func (s *EventSubscription) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Closed
}

// Wait blocks until a handler subscription has drained its queue after Close.
func (s *EventSubscription) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// deliver hands the event to the subscription without blocking. It returns false when the
// event had to be dropped.
func (s *EventSubscription) deliver(event Event) (delivered bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Closed {
		return false, true
	}
	target := s.Channel
	if s.queue != nil {
		target = s.queue
	}
	select {
	case target <- event:
		return true, true
	default:
		return false, false
	}
}

func (s *EventSubscription) run() {
	defer close(s.done)
	for event := range s.queue {
		s.invoke(event)
	}
}

func (s *EventSubscription) invoke(event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("EventBus", "Subscriber %s panicked handling %s: %v", s.ID, event.Type(), r)
		}
	}()
	s.Handler(event)
}

// EventBus provides publish/subscribe functionality for events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(event Event)

	// Subscribe creates a subscription with a handler function
	Subscribe(filter EventFilter, handler EventHandler) *EventSubscription

	// SubscribeChannel creates a subscription with a channel
	SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscription *EventSubscription)

	// GetMetrics returns event bus metrics
	GetMetrics() EventBusMetrics

	// Close closes the event bus and all subscriptions
	Close()
}

// EventBusMetrics tracks event bus performance
type EventBusMetrics struct {
	TotalSubscriptions  int
	ActiveSubscriptions int
	EventsPublished     int64
	EventsDelivered     int64
	EventsDropped       int64
	LastEventTime       time.Time
	EventsByType        map[EventType]int64
}

// DefaultEventBus is the default implementation of EventBus
type DefaultEventBus struct {
	subscriptions map[string]*EventSubscription
	order         []string
	metrics       EventBusMetrics
	mu            sync.RWMutex
	closed        bool
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &DefaultEventBus{
		subscriptions: make(map[string]*EventSubscription),
		metrics: EventBusMetrics{
			EventsByType: make(map[EventType]int64),
		},
	}
}

// Publish publishes an event to all subscribers. Delivery never blocks the publisher; a
// subscriber whose buffer is full loses the event and the drop is counted.
func (eb *DefaultEventBus) Publish(event Event) {
	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return
	}
	subs := make([]*EventSubscription, 0, len(eb.order))
	for _, id := range eb.order {
		subs = append(subs, eb.subscriptions[id])
	}
	eb.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range subs {
		if sub.Filter != nil && !sub.Filter(event) {
			continue
		}
		ok, accepted := sub.deliver(event)
		switch {
		case ok:
			delivered++
		case !accepted:
			dropped++
			logging.Debug("EventBus", "Dropped %s for subscriber %s (buffer full)", event.Type(), sub.ID)
		}
	}

	eb.mu.Lock()
	eb.metrics.EventsPublished++
	eb.metrics.EventsByType[event.Type()]++
	eb.metrics.LastEventTime = event.Timestamp()
	eb.metrics.EventsDelivered += int64(delivered)
	eb.metrics.EventsDropped += int64(dropped)
	eb.mu.Unlock()
}

// Subscribe creates a subscription with a handler function
func (eb *DefaultEventBus) Subscribe(filter EventFilter, handler EventHandler) *EventSubscription {
	sub := &EventSubscription{
		ID:      GenerateCorrelationID() + "_sub",
		Filter:  filter,
		Handler: handler,
		queue:   make(chan Event, handlerQueueSize),
		done:    make(chan struct{}),
	}
	if !eb.add(sub) {
		return nil
	}
	go sub.run()
	return sub
}

// SubscribeChannel creates a subscription with a channel
func (eb *DefaultEventBus) SubscribeChannel(filter EventFilter, bufferSize int) *EventSubscription {
	sub := &EventSubscription{
		ID:      GenerateCorrelationID() + "_sub",
		Filter:  filter,
		Channel: make(chan Event, bufferSize),
	}
	if !eb.add(sub) {
		return nil
	}
	return sub
}

func (eb *DefaultEventBus) add(sub *EventSubscription) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return false
	}
	eb.subscriptions[sub.ID] = sub
	eb.order = append(eb.order, sub.ID)
	eb.metrics.TotalSubscriptions++
	eb.metrics.ActiveSubscriptions++
	return true
}

// Unsubscribe removes a subscription
func (eb *DefaultEventBus) Unsubscribe(subscription *EventSubscription) {
	if subscription == nil {
		return
	}
	eb.mu.Lock()
	if _, exists := eb.subscriptions[subscription.ID]; exists {
		delete(eb.subscriptions, subscription.ID)
		for i, id := range eb.order {
			if id == subscription.ID {
				eb.order = append(eb.order[:i], eb.order[i+1:]...)
				break
			}
		}
		eb.metrics.ActiveSubscriptions--
	}
	eb.mu.Unlock()
	subscription.Close()
}

// GetMetrics returns event bus metrics
func (eb *DefaultEventBus) GetMetrics() EventBusMetrics {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Return a copy to prevent external modification
	metrics := eb.metrics
	metrics.EventsByType = make(map[EventType]int64, len(eb.metrics.EventsByType))
	for k, v := range eb.metrics.EventsByType {
		metrics.EventsByType[k] = v
	}
	return metrics
}

// Close closes the event bus and all subscriptions
func (eb *DefaultEventBus) Close() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		return
	}
	eb.closed = true
	subs := eb.subscriptions
	eb.subscriptions = make(map[string]*EventSubscription)
	eb.order = nil
	eb.metrics.ActiveSubscriptions = 0
	eb.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Common event filters

// FilterByType creates a filter that matches events of specific types
func FilterByType(eventTypes ...EventType) EventFilter {
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	return func(event Event) bool {
		return typeMap[event.Type()]
	}
}

// FilterByTypePrefix matches every event whose type starts with prefix, e.g. "connection.".
func FilterByTypePrefix(prefix string) EventFilter {
	return func(event Event) bool {
		return strings.HasPrefix(string(event.Type()), prefix)
	}
}

// FilterBySource creates a filter that matches events from specific sources
func FilterBySource(sources ...string) EventFilter {
	sourceMap := make(map[string]bool)
	for _, s := range sources {
		sourceMap[s] = true
	}

	return func(event Event) bool {
		return sourceMap[event.Source()]
	}
}

// FilterBySeverity creates a filter that matches events with minimum severity
func FilterBySeverity(minSeverity EventSeverity) EventFilter {
	severityLevels := map[EventSeverity]int{
		SeverityDebug: 0,
		SeverityInfo:  1,
		SeverityWarn:  2,
		SeverityError: 3,
	}

	minLevel := severityLevels[minSeverity]

	return func(event Event) bool {
		eventLevel, exists := severityLevels[event.Severity()]
		return exists && eventLevel >= minLevel
	}
}

// FilterByCorrelation creates a filter that matches events with specific correlation ID
func FilterByCorrelation(correlationID string) EventFilter {
	return func(event Event) bool {
		return event.CorrelationID() == correlationID
	}
}

// CombineFilters combines multiple filters with AND logic
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if !filter(event) {
				return false
			}
		}
		return true
	}
}

// AnyFilter combines multiple filters with OR logic
func AnyFilter(filters ...EventFilter) EventFilter {
	return func(event Event) bool {
		for _, filter := range filters {
			if filter(event) {
				return true
			}
		}
		return false
	}
}
