package alerting

import "fmt"

// InputError wraps a failure to resolve monitor inputs, including timeouts.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// ConditionEvaluationError wraps a script failure while evaluating a trigger.
type ConditionEvaluationError struct {
	TriggerID string
	Err       error
}

func (e *ConditionEvaluationError) Error() string { return e.Err.Error() }
func (e *ConditionEvaluationError) Unwrap() error { return e.Err }

// ActionRenderError wraps a template failure for an action's subject or message.
type ActionRenderError struct {
	ActionID string
	Err      error
}

func (e *ActionRenderError) Error() string { return e.Err.Error() }
func (e *ActionRenderError) Unwrap() error { return e.Err }

// ActionDeliveryError wraps a failure to publish an action's message.
type ActionDeliveryError struct {
	DestinationID string
	Err           error
}

func (e *ActionDeliveryError) Error() string { return e.Err.Error() }
func (e *ActionDeliveryError) Unwrap() error { return e.Err }

func errMessageMissing(destinationID string) error {
	return fmt.Errorf("Message content missing in the Destination with id: %s", destinationID)
}

// errUnsupportedTrigger is returned for reserved trigger variants.
func errUnsupportedTrigger(kind string) error {
	return fmt.Errorf("unsupported trigger kind %q", kind)
}
