// internal/service/dispatch_service.go
package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/provider"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
)

// QuotaChecker is the part of the quota guard the dispatch path needs.
type QuotaChecker interface {
	CheckLimit(ctx context.Context, phone string) quota.Decision
}

// DispatchService consults the quota guard before every send and returns the sender's
// errors unchanged.
type DispatchService struct {
	Guard  QuotaChecker
	Sender provider.Sender
	Logger *logger.Logger
}

func NewDispatchService(guard QuotaChecker, sender provider.Sender, log *logger.Logger) *DispatchService {
	if log == nil {
		log = logger.Nop()
	}
	return &DispatchService{Guard: guard, Sender: sender, Logger: log}
}

func (s *DispatchService) SendTemplate(ctx context.Context, phone, templateName, languageCode string, components []provider.Component) (*provider.SendResult, error) {
	to, err := s.admit(ctx, phone)
	if err != nil {
		return nil, err
	}
	res, err := s.Sender.SendTemplate(ctx, provider.TemplateRequest{
		To:           to,
		TemplateName: templateName,
		LanguageCode: languageCode,
		Components:   components,
	})
	if err != nil {
		s.logFailure("template send failed", to, zap.String("template", templateName), err)
		return nil, err
	}
	return res, nil
}

func (s *DispatchService) SendText(ctx context.Context, phone, body string) (*provider.SendResult, error) {
	to, err := s.admit(ctx, phone)
	if err != nil {
		return nil, err
	}
	res, err := s.Sender.SendText(ctx, provider.TextRequest{To: to, Body: body})
	if err != nil {
		s.logFailure("text send failed", to, zap.Int("body_len", len(body)), err)
		return nil, err
	}
	return res, nil
}

// admit normalises the phone and asks the guard. A rejection becomes a *QuotaExceededError.
func (s *DispatchService) admit(ctx context.Context, phone string) (string, error) {
	to, err := provider.NormalizePhone(phone)
	if err != nil {
		s.Logger.Warn("rejecting send to invalid phone", zap.String("phone", phone), zap.Error(err))
		return "", err
	}
	d := s.Guard.CheckLimit(ctx, to)
	if !d.Allowed {
		return "", appErrors.NewQuotaExceeded(d.CurrentCount, d.Limit, d.Reason)
	}
	return to, nil
}

func (s *DispatchService) logFailure(msg, to string, detail zap.Field, err error) {
	fields := []zap.Field{zap.String("to", to), detail, zap.Error(err)}
	if pe, ok := appErrors.AsProviderError(err); ok {
		fields = append(fields,
			zap.String("kind", pe.Kind.Name),
			zap.Int("code", pe.Code),
			zap.Bool("retryable", pe.Retryable()),
			zap.String("trace_id", pe.TraceID),
		)
	}
	s.Logger.Error(msg, fields...)
}
