package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

// DetailType labels every failure event published to the bus.
const DetailType = "PipelineStageFailed"

var _ repository.Notifier = (*EventBridgeNotifier)(nil)

// PutEventsAPI is the part of the EventBridge client the notifier uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeNotifier publishes failure events to an EventBridge bus.
type EventBridgeNotifier struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

func NewEventBridgeNotifier(client PutEventsAPI, eventBusName, source string, logger *zap.Logger) *EventBridgeNotifier {
	return &EventBridgeNotifier{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		logger:       logger,
	}
}

func (n *EventBridgeNotifier) Notify(ctx context.Context, ev *entity.FailureEvent) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal failure event: %w", err)
	}

	result, err := n.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(n.eventBusName),
			Source:       aws.String(n.source),
			DetailType:   aws.String(DetailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(ev.OccurredAt),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to publish failure event to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				n.logger.Error("Failed to publish failure event",
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)))
			}
		}
		return fmt.Errorf("%d failure events were not accepted", result.FailedEntryCount)
	}

	n.logger.Debug("Failure event published",
		zap.String("eventBus", n.eventBusName),
		zap.String("stage", string(ev.Stage)))
	return nil
}
