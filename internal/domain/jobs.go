package domain

import (
	"context"
	"time"
)

// NotificationJob содержит уведомление, переданное через очередь.
type NotificationJob struct {
	ID           string       `json:"job_id,omitempty"`
	Notification Notification `json:"notification"`
	Attempt      int          `json:"attempt,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NotificationQueue описывает очередь уведомлений между планировщиком и ботом.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job NotificationJob) error
	Receive(ctx context.Context) (NotificationJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
