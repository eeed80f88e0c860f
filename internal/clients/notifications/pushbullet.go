package notifications

import (
	"fmt"

	"github.com/xconstruct/go-pushbullet"

	"magnetd/internal/utils"
)

// PushbulletClient implements the Notifier interface for Pushbullet.
type PushbulletClient struct {
	apiKey string
	pb     *pushbullet.Client
	logger *utils.Logger
}

// NewPushbulletClient creates a new client for sending Pushbullet notifications.
func NewPushbulletClient(apiKey string, logger *utils.Logger) *PushbulletClient {
	return &PushbulletClient{
		apiKey: apiKey,
		pb:     pushbullet.New(apiKey),
		logger: logger,
	}
}

// sendPush sends a note to all of the user's devices.
func (c *PushbulletClient) sendPush(title, body string) error {
	// The first argument to PushNote is the device iden. Empty means all devices.
	return c.pb.PushNote("", title, body)
}

// NotifyDownloadStart sends a notification when a download is handed to the engine.
func (c *PushbulletClient) NotifyDownloadStart(name string) {
	title := "Download Started"
	body := fmt.Sprintf("Started downloading: %s", name)
	if err := c.sendPush(title, body); err != nil {
		c.logger.Error("Error sending Pushbullet notification: %v", err)
	}
}

// NotifyDownloadComplete sends a notification when a download finishes.
func (c *PushbulletClient) NotifyDownloadComplete(name string) {
	title := fmt.Sprintf("Download Complete: %s", name)
	body := fmt.Sprintf("Finished downloading: %s", name)
	if err := c.sendPush(title, body); err != nil {
		c.logger.Error("Error sending Pushbullet notification: %v", err)
	}
}

// NotifyDownloadError sends a notification when a download fails.
func (c *PushbulletClient) NotifyDownloadError(name string, reason string) {
	title := fmt.Sprintf("Error downloading %s", name)
	body := reason
	if err := c.sendPush(title, body); err != nil {
		c.logger.Error("Error sending Pushbullet notification: %v", err)
	}
}

// Test verifies the API key is valid by fetching user info.
func (c *PushbulletClient) Test() error {
	if _, err := c.pb.Me(); err != nil {
		return fmt.Errorf("pushbullet authentication failed: %w", err)
	}
	return nil
}
