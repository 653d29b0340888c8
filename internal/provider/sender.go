package provider

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

// Sender delivers one message. The real Client and the Simulator both satisfy it;
// which one is used is decided once, at construction.
type Sender interface {
	SendTemplate(ctx context.Context, req TemplateRequest) (*SendResult, error)
	SendText(ctx context.Context, req TextRequest) (*SendResult, error)
}

// NewSender picks the simulator when the config is a dry run or lacks credentials.
func NewSender(cfg config.ProviderConfig, httpClient *http.Client, log *logger.Logger) Sender {
	if cfg.Simulate() {
		if log != nil {
			log.Warn("provider credentials missing or dry run enabled, sends are simulated")
		}
		return NewSimulator()
	}
	return NewClient(ClientConfig{
		BaseURL:       cfg.BaseURL,
		APIVersion:    cfg.APIVersion,
		PhoneNumberID: cfg.PhoneNumberID,
		AccessToken:   cfg.AccessToken,
		Timeout:       cfg.Timeout,
		RetryDelay:    cfg.RetryDelay,
	}, httpClient, log)
}

// simulatedNamespace seeds name-based ids so the same message always gets the same id.
var simulatedNamespace = uuid.MustParse("6f1c8a52-3c1e-4d0a-9a43-0e6b2f7c9d15")

// Simulator synthesises successful sends without contacting the provider.
type Simulator struct{}

func NewSimulator() *Simulator { return &Simulator{} }

func (s *Simulator) SendTemplate(_ context.Context, req TemplateRequest) (*SendResult, error) {
	return simulated("template|" + req.To + "|" + req.TemplateName + "|" + req.LanguageCode), nil
}

func (s *Simulator) SendText(_ context.Context, req TextRequest) (*SendResult, error) {
	return simulated("text|" + req.To + "|" + req.Body), nil
}

func simulated(key string) *SendResult {
	id := uuid.NewSHA1(simulatedNamespace, []byte(key))
	return &SendResult{MessageIDs: []string{"wamid.SIM." + id.String()}, Simulated: true}
}

var _ Sender = (*Simulator)(nil)
