package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yashrajoria/docstore-service/common/logger"
	awspkg "github.com/yashrajoria/docstore-service/pkg/aws"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// SNSNotifier publishes each change to an SNS topic in the background.
type SNSNotifier struct {
	publisher awspkg.SNSPublisher
	topicArn  string
	wg        sync.WaitGroup
}

func NewSNSNotifier(publisher awspkg.SNSPublisher, topicArn string) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, topicArn: topicArn}
}

func (n *SNSNotifier) Notify(ctx context.Context, change Change) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	body, err := json.Marshal(change)
	if err != nil {
		logger.Error(ctx, "encode change event", err)
		return
	}
	attrs := map[string]string{"kind": change.Kind, "action": string(change.Action)}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.publisher.Publish(pubCtx, n.topicArn, body, attrs); err != nil {
			logger.Warn(ctx, "publish change event failed",
				zap.String("kind", change.Kind),
				zap.String("id", change.ID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every pending publish has finished.
func (n *SNSNotifier) Wait() {
	n.wg.Wait()
}
