package model

import "errors"

var (
	// ErrWorkerNotConnected is returned when a request requires a worker
	// endpoint but none is registered for the session.
	ErrWorkerNotConnected = errors.New("worker not connected")

	// ErrBrowserNotConnected is returned when a reply requires a browser
	// endpoint but none is registered for the session.
	ErrBrowserNotConnected = errors.New("browser not connected")

	// ErrSessionNotFound is returned when no session exists for an identity.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a session removal is attempted while
	// an endpoint is still attached or a broadcast run is live.
	ErrSessionBusy = errors.New("session has live endpoints or broadcast")

	// ErrEndpointClosed is returned when sending on a closed endpoint.
	ErrEndpointClosed = errors.New("endpoint closed")
)
