package services

import (
	"context"
	"fmt"

	"github.com/HSouheill/barrim_notifications/models"
)

// EntityVacationRequest is the entity kind referenced by request events
const EntityVacationRequest = "vacation_request"

// VacationRequestEvent describes a vacation request for notification text
type VacationRequestEvent struct {
	RequestID    string
	EmployeeName string
	StartDate    string
	EndDate      string
}

// NotifyRequestSubmitted tells an approver that a request awaits review
func (d *Dispatcher) NotifyRequestSubmitted(ctx context.Context, approverID string, req VacationRequestEvent) (*models.Notification, error) {
	return d.notify(ctx, approverID, models.CategoryRequestSubmitted,
		"New vacation request",
		fmt.Sprintf("%s requested vacation from %s to %s.", req.EmployeeName, req.StartDate, req.EndDate),
		req.RequestID, EntityVacationRequest)
}

// NotifyRequestApproved tells the requester their request was approved
func (d *Dispatcher) NotifyRequestApproved(ctx context.Context, requesterID string, req VacationRequestEvent) (*models.Notification, error) {
	return d.notify(ctx, requesterID, models.CategoryRequestApproved,
		"Vacation request approved",
		fmt.Sprintf("Your vacation from %s to %s has been approved.", req.StartDate, req.EndDate),
		req.RequestID, EntityVacationRequest)
}

// NotifyRequestRejected tells the requester their request was rejected
func (d *Dispatcher) NotifyRequestRejected(ctx context.Context, requesterID string, req VacationRequestEvent, reason string) (*models.Notification, error) {
	body := fmt.Sprintf("Your vacation from %s to %s has been rejected.", req.StartDate, req.EndDate)
	if reason != "" {
		body += " Reason: " + reason
	}
	return d.notify(ctx, requesterID, models.CategoryRequestRejected,
		"Vacation request rejected", body, req.RequestID, EntityVacationRequest)
}

// NotifyConflictDetected warns an approver about overlapping absences
func (d *Dispatcher) NotifyConflictDetected(ctx context.Context, approverID string, req VacationRequestEvent, conflictingWith []string) (*models.Notification, error) {
	return d.notify(ctx, approverID, models.CategoryConflictDetected,
		"Scheduling conflict detected",
		fmt.Sprintf("The request of %s overlaps with %d other absence(s).", req.EmployeeName, len(conflictingWith)),
		req.RequestID, EntityVacationRequest)
}

// NotifyUserApproved tells a newly registered user their account is active
func (d *Dispatcher) NotifyUserApproved(ctx context.Context, userID string) (*models.Notification, error) {
	return d.notify(ctx, userID, models.CategoryUserApproved,
		"Account approved",
		"Your account has been approved. You can now submit vacation requests.",
		userID, "user")
}

func (d *Dispatcher) notify(ctx context.Context, userID string, category models.Category, title, message, entityID, entityType string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:     userID,
		Type:       category,
		Title:      title,
		Message:    message,
		EntityID:   entityID,
		EntityType: entityType,
	}
	if err := d.Dispatch(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
