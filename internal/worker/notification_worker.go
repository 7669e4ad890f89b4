package worker

import (
	"context"

	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/service"
)

// StartNotificationWorker registers notification handlers and starts the
// dispatcher drain goroutine.
func StartNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService) {
	if notificationService == nil || dispatcher == nil {
		return
	}
	notificationService.RegisterHandlers()
	go dispatcher.Run(ctx)
}
