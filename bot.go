package zadavalnik

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	pollTimeoutSeconds = 30
	downloadTimeout    = 30 * time.Second
	// maxPhotoBytes caps photo downloads; Telegram re-encodes photos well
	// below this
	maxPhotoBytes = 10 * 1024 * 1024
)

const helpText = "Available commands:\n" +
	"/start - begin a new test\n" +
	"/newtest - begin a new test\n" +
	"/help - show this message\n\n" +
	"Send a topic, a photo, or a plain text document to get your questions."

// Bot is the Telegram front end. It maps inbound updates onto state machine
// actions and delivers the replies; all quiz logic lives in the
// SessionManager.
type Bot struct {
	api        *tgbotapi.BotAPI
	manager    *SessionManager
	httpClient *http.Client
	turnBudget time.Duration
}

// NewBot creates the Telegram bot front end
func NewBot(token string, manager *SessionManager, turnBudget time.Duration) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{
		api:        api,
		manager:    manager,
		httpClient: &http.Client{Timeout: downloadTimeout},
		turnBudget: turnBudget,
	}, nil
}

// Username returns the bot account name reported by Telegram
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run polls Telegram for updates until the context is cancelled. Each update
// is handled on its own goroutine; per-user ordering is enforced by the
// session manager's per-user lock.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(u)

	log.Printf("Bot @%s polling for updates", b.Username())

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go b.handleMessage(update.Message)
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.turnBudget)
	defer cancel()

	user := User{
		ID:           msg.From.ID,
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
		IsBot:        msg.From.IsBot,
	}

	var reply string
	switch {
	case msg.IsCommand():
		reply = b.handleCommand(ctx, user, msg.Command())
	case len(msg.Photo) > 0:
		reply = b.handlePhoto(ctx, user.ID, msg.Photo)
	case msg.Document != nil:
		reply = b.handleDocument(ctx, user.ID, msg.Document)
	case msg.Text != "":
		reply = b.manager.HandleText(ctx, user.ID, msg.Text)
	default:
		reply = "I can only work with text, photos and plain text documents."
	}

	if reply == "" {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		log.Printf("Failed to send reply to chat %d: %v", msg.Chat.ID, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, user User, command string) string {
	switch command {
	case "start", "newtest":
		return b.manager.StartNewTest(ctx, user)
	case "help":
		return helpText
	default:
		return "Unknown command. " + msgNoSession
	}
}

// handlePhoto downloads the largest size of a photo and starts a test from
// it. Telegram delivers photo sizes in ascending order and re-encodes them
// as JPEG.
func (b *Bot) handlePhoto(ctx context.Context, userID int64, sizes []tgbotapi.PhotoSize) string {
	largest := sizes[len(sizes)-1]
	data, err := b.downloadFile(largest.FileID, maxPhotoBytes)
	if err != nil {
		log.Printf("Failed to download photo for user %d: %v", userID, err)
		return msgRetry
	}
	return b.manager.HandleImage(ctx, userID, data, "jpeg")
}

// handleDocument checks the declared metadata before fetching anything, so
// oversized or non-text files are refused without a download
func (b *Bot) handleDocument(ctx context.Context, userID int64, doc *tgbotapi.Document) string {
	if err := CheckDeclaredDocument(doc.MimeType, doc.FileName, int64(doc.FileSize)); err != nil {
		return err.Error()
	}
	data, err := b.downloadFile(doc.FileID, MaxDocumentBytes+1)
	if err != nil {
		log.Printf("Failed to download document for user %d: %v", userID, err)
		return msgRetry
	}
	return b.manager.HandleDocument(ctx, userID, data, doc.FileName)
}

func (b *Bot) downloadFile(fileID string, limit int64) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}
	resp, err := b.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}
