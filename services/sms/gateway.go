package smssvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/feeportal/core"
)

const gatewayTimeout = 10 * time.Second

// GatewayService posts messages to an HTTP SMS gateway.
type GatewayService struct {
	url    string
	key    string
	sender string
	client *rest.Client
	logger core.Logger
	queue  *jobQueue
}

var (
	_ core.SMSService  = (*GatewayService)(nil)
	_ core.SMSCanceler = (*GatewayService)(nil)
)

type gatewayPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

func NewGatewayService(conf *core.Config, logger core.Logger) *GatewayService {
	return &GatewayService{
		url:    conf.SMS.GatewayURL,
		key:    conf.SMS.APIKey,
		sender: conf.SMS.Sender,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: gatewayTimeout}},
		logger: logger,
		queue:  newJobQueue(),
	}
}

func (svc *GatewayService) Send(ctx context.Context, msg core.SMSMessage) error {
	if msg.To == "" {
		return errNoRecipient
	}
	body, err := json.Marshal(gatewayPayload{From: svc.sender, To: msg.To, Message: msg.Body})
	if err != nil {
		return errors.Wrap(err, "encoding SMS")
	}

	req := rest.Request{
		Method:  rest.Post,
		BaseURL: svc.url,
		Headers: map[string]string{
			"Authorization": "Bearer " + svc.key,
			"Content-Type":  "application/json",
		},
		Body: body,
	}
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building SMS request")
	}
	httpRes, err := svc.client.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "sending SMS")
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return errors.Wrap(err, "reading SMS response")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending SMS - status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (svc *GatewayService) Schedule(msg core.SMSMessage, at time.Time) (core.ScheduleHandle, error) {
	return svc.queue.schedule(msg, at, func(m core.SMSMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
		defer cancel()
		if err := svc.Send(ctx, m); err != nil {
			svc.logger.Error(fmt.Sprintf("sending scheduled SMS %s: %v", m.JobID, err), err)
		}
	})
}

func (svc *GatewayService) Cancel(jobID string) bool {
	return svc.queue.cancel(jobID)
}

func (svc *GatewayService) Stop() {
	svc.queue.stop()
}
