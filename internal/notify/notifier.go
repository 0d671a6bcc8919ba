package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"retratai/internal/queue"

	"github.com/sirupsen/logrus"
)

// TaskTypeEmail is the outbox task type carrying an Email payload.
const TaskTypeEmail = "email"

// Notifier publishes workflow emails to the outbox. Failures are logged, never returned.
type Notifier struct {
	publisher  queue.Publisher
	appBaseURL string
}

func NewNotifier(publisher queue.Publisher, appBaseURL string) *Notifier {
	return &Notifier{publisher: publisher, appBaseURL: appBaseURL}
}

// ModelReady 训练完成通知。
func (n *Notifier) ModelReady(ctx context.Context, to, modelName string, modelID uint) {
	n.enqueue(ctx, Email{
		To:      to,
		Subject: subjectModelReady,
		HTML:    renderModelReady(n.appBaseURL, modelName, modelID),
	}, modelID)
}

// ImagesReady 图片生成完成通知。
func (n *Notifier) ImagesReady(ctx context.Context, to, modelName string, modelID uint, count int) {
	n.enqueue(ctx, Email{
		To:      to,
		Subject: subjectImagesReady,
		HTML:    renderImagesReady(n.appBaseURL, modelName, modelID, count),
	}, modelID)
}

func (n *Notifier) enqueue(ctx context.Context, email Email, modelID uint) {
	logger := logrus.WithFields(logrus.Fields{
		"model_id": modelID,
		"subject":  email.Subject,
	})
	if n == nil || n.publisher == nil {
		logger.Warn("email_enqueue_skipped")
		return
	}
	if strings.TrimSpace(email.To) == "" {
		logger.Warn("email_enqueue_skipped_no_recipient")
		return
	}

	task, err := queue.NewTask(TaskTypeEmail, email)
	if err != nil {
		logger.WithError(err).Error("email_enqueue_failed")
		return
	}
	if err := n.publisher.Publish(context.WithoutCancel(ctx), task); err != nil {
		logger.WithError(err).Error("email_enqueue_failed")
		return
	}
	logger.WithField("task_id", task.ID).Info("email_enqueued")
}

// EmailHandler returns the outbox handler that delivers email tasks through mailer.
func EmailHandler(mailer Mailer) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		var email Email
		if err := json.Unmarshal(task.Payload, &email); err != nil {
			return fmt.Errorf("decode email task: %w", err)
		}
		return mailer.Send(ctx, email)
	}
}
