package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskDeliver delivers one staged notification.
	TaskDeliver = "email:deliver"
	// QueueNotifications carries delivery tasks.
	QueueNotifications = "notifications"
	// maxDeliverRetry bounds asynq retries for a delivery.
	maxDeliverRetry = 8
)

// DeliverPayload identifies the notification to deliver.
type DeliverPayload struct {
	NotificationID string `json:"notificationId"`
}

// NewDeliverTask builds a delivery task whose task id is the notification id,
// so repeated enqueues of the same notification collapse.
func NewDeliverTask(id string) (*asynq.Task, error) {
	body, err := json.Marshal(DeliverPayload{NotificationID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliver, body,
		asynq.TaskID(id),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(maxDeliverRetry),
	), nil
}

// ParseDeliverPayload decodes a delivery task payload.
func ParseDeliverPayload(t *asynq.Task) (DeliverPayload, error) {
	var p DeliverPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return DeliverPayload{}, fmt.Errorf("%w: decode payload: %v", ErrPermanent, err)
	}
	if p.NotificationID == "" {
		return DeliverPayload{}, fmt.Errorf("%w: notification id missing", ErrPermanent)
	}
	return p, nil
}
