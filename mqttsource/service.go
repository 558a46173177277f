// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package mqttsource feeds uplinks from an MQTT broker into the ingestion
// pipeline. The expected topic shape is the network server convention
// v3/<application>/devices/<device>/up; the device segment becomes the
// fallback identifier when the payload itself does not carry one.
package mqttsource

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/ingest"
)

var mon = monkit.Package()

// Error is the error class for MQTT source failures.
var Error = errs.Class("mqttsource")

// Config defines the broker connection parameters.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string // subscription filter, e.g. v3/+/devices/+/up
	Username string
	Password string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ClientID: "tracklog-ingest",
		Topic:    "v3/+/devices/+/up",
	}
}

// Service subscribes to uplink messages and hands them to ingestion.
type Service struct {
	log    *zap.Logger
	config Config
	ingest *ingest.Service
}

// NewService creates a new MQTT source.
func NewService(log *zap.Logger, ingestService *ingest.Service, config Config) *Service {
	return &Service{
		log:    log,
		config: config,
		ingest: ingestService,
	}
}

// Run connects to the broker and processes uplinks until the context is
// canceled.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	opts := mqtt.NewClientOptions().
		AddBroker(service.config.Broker).
		SetClientID(service.config.ClientID).
		SetAutoReconnect(true)
	if service.config.Username != "" {
		opts.SetUsername(service.config.Username)
		opts.SetPassword(service.config.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return Error.Wrap(token.Error())
	}
	defer client.Disconnect(250)
	service.log.Info("connected to broker", zap.String("broker", service.config.Broker))

	token := client.Subscribe(service.config.Topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		service.handleMessage(ctx, msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return Error.Wrap(token.Error())
	}
	service.log.Info("subscribed", zap.String("topic", service.config.Topic))

	<-ctx.Done()
	return nil
}

// handleMessage processes a single uplink. Failures are logged and dropped so
// one bad message cannot stall the subscription.
func (service *Service) handleMessage(ctx context.Context, topic string, payload []byte) {
	device := deviceFromTopic(topic)

	res, err := service.ingest.Process(ctx, device, payload)
	if err != nil {
		service.log.Warn("dropping uplink",
			zap.String("topic", topic),
			zap.Error(err))
		return
	}
	service.log.Debug("uplink processed",
		zap.String("device", res.Device),
		zap.Int("written", res.Written),
		zap.Int("skipped_dup", res.SkippedDup),
		zap.Int("skipped_bad", res.SkippedBad))
}

// deviceFromTopic extracts the device segment from a
// v3/<application>/devices/<device>/up topic; other shapes yield "".
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i, part := range parts {
		if part == "devices" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
