package sessionx

import (
	"context"
	"log/slog"
)

// Coordinator turns classified pipeline failures into their user-visible
// effects. Every failure yields exactly one notification; authorization
// failures also drop the session and navigate to the login page.
type Coordinator struct {
	manager   *Manager
	navigator *Navigator
	notifier  Notifier
	logger    *slog.Logger
}

// NewCoordinator wires the failure reactions. navigator may be nil when no
// navigation surface exists.
func NewCoordinator(manager *Manager, navigator *Navigator, notifier Notifier, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		manager:   manager,
		navigator: navigator,
		notifier:  notifier,
		logger:    logger,
	}
}

// HandleFailure implements FailureHandler.
func (c *Coordinator) HandleFailure(ctx context.Context, err *Error) {
	if err == nil {
		return
	}
	// The caller may already be giving up on ctx; the session side effects
	// must still land.
	ctx = context.WithoutCancel(ctx)

	msg := err.Message
	if msg == "" {
		msg = DefaultMessage(err.Code)
	}
	c.notifier.Notify(ctx, SeverityError, msg)

	if !err.Unauthorized() {
		return
	}
	if ierr := c.manager.Invalidate(ctx, "authorization failure: "+msg); ierr != nil {
		c.logger.WarnContext(ctx, "clear credentials after authorization failure", "error", ierr)
	}
	if c.navigator == nil {
		return
	}
	if _, nerr := c.navigator.Push(ctx, c.navigator.guard.LoginPath()); nerr != nil {
		c.logger.WarnContext(ctx, "redirect to login", "error", nerr)
	}
}
