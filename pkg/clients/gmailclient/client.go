package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/teamclean/pkg/utils"
)

// Client wraps the Gmail API client
type Client struct {
	service      *gmail.Service
	sender       string
	interval     time.Duration
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client from a service account key file.
// The service account impersonates sender through domain-wide delegation.
func NewClient(ctx context.Context, credentialsFile, sender string, interval time.Duration) (*Client, error) {
	jwtConfig, err := utils.LoadServiceAccountConfig(credentialsFile, sender, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to load gmail credentials: %w", err)
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	if interval <= 0 {
		interval = DefaultEmailInterval
	}

	return &Client{
		service:  service,
		sender:   sender,
		interval: interval,
	}, nil
}
