package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labworks/platform/pkg/common/config"
	"github.com/labworks/platform/pkg/common/kafka"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/delivery"
	"github.com/labworks/platform/pkg/observability/metrics"
)

// The notifier consumes workflow events and emails the doctor when one of
// their test results is ready. Delivery is best effort; the result itself
// is already committed.
func main() {
	logger.Init()
	cfg := config.Load()

	var mailer delivery.EmailSender = delivery.NoopMailer{}
	if cfg.SMTPHost != "" {
		mailer = delivery.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender)
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.KafkaGroupID+"-notifier")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down notifier service...")
		cancel()
	}()

	logger.Log.WithField("topic", cfg.EventsTopic).Info("notifier service consuming")
	err := consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
		if event.Type != "result.uploaded" {
			return nil
		}
		return notifyDoctor(ctx, mailer, event)
	})
	if err != nil && err != context.Canceled {
		logger.Log.WithError(err).Error("notifier consume loop failed")
	}
	logger.Log.Info("notifier service stopped")
}

func notifyDoctor(ctx context.Context, mailer delivery.EmailSender, event models.Event) error {
	email, _ := event.Data["doctor_email"].(string)
	if email == "" {
		logger.Log.WithField("event_id", event.ID).Warn("result.uploaded event without doctor email")
		return nil
	}
	doctorName, _ := event.Data["doctor_name"].(string)
	patientName, _ := event.Data["patient_name"].(string)
	testType, _ := event.Data["test_type"].(string)

	body := fmt.Sprintf(
		"Dear %s,\n\nA test result is ready for your review.\n\nPatient: %s\nTest: %s\n\nLog in to view the full result.\n",
		doctorName, patientName, testType,
	)

	if err := mailer.Send(ctx, delivery.EmailMessage{
		To:      email,
		Subject: "Test result ready: " + testType,
		Body:    body,
	}); err != nil {
		metrics.IncEmailsFailed()
		return err
	}
	metrics.IncEmailsSent()
	return nil
}
