package chat

import "errors"

var (
	// ErrTargetNotFound means no open tab matched the chat application.
	ErrTargetNotFound = errors.New("chat tab not found")

	// ErrElementNotFound means the page layout did not match: the prompt
	// field or send control is missing. Terminal for the current send.
	ErrElementNotFound = errors.New("page element not found")

	// ErrTransport wraps a failed channel open or evaluate round trip.
	// Transient during polling, terminal during submit and send.
	ErrTransport = errors.New("transport failure")

	// ErrBusy means a send is already in flight on this driver. One
	// driver handles exactly one outstanding send.
	ErrBusy = errors.New("a send is already in progress")

	// ErrTimeout means the tick budget ran out before the reply settled.
	// The Result still carries the partial text and images.
	ErrTimeout = errors.New("reply did not stabilize")
)
