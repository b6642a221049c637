// Package main runs the subscription intake as an AWS Lambda function
// behind an API Gateway proxy integration.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/subscription-intake/pkg/config"
	"github.com/platinummonkey/subscription-intake/pkg/intake"
	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/server"
)

func main() {
	boot := setupLogger(os.Getenv("INTAKE_LOG_LEVEL"))

	cfg, err := config.Load(os.Getenv("INTAKE_CONFIG"))
	if err != nil {
		boot.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "subscription-intake-lambda")

	// Metrics stay nil: there is no scrape endpoint inside Lambda
	components, err := server.BuildComponents(context.Background(), cfg, logger, nil)
	if err != nil {
		boot.WithError(err).Fatal("Failed to initialize")
	}

	boot.WithFields(logrus.Fields{
		"storage": cfg.Storage.Type,
		"price":   cfg.Stripe.PriceID != "",
	}).Info("Cold start complete")

	lambda.Start(intake.LambdaHandler(components.Service))
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
