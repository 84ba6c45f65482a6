package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendHTML(ctx context.Context, to []string, replyTo, subject, htmlBody, textBody string) error {
	args := m.Called(ctx, to, replyTo, subject, htmlBody, textBody)
	return args.Error(0)
}

type MockCaptchaVerifier struct {
	mock.Mock
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}
