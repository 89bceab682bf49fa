package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cropadvisor/internal/config"
	"cropadvisor/internal/domain"
)

const whatsappAPIBase = "https://graph.facebook.com/v21.0"

// WhatsApp implements domain.Channel for the WhatsApp Business Cloud API.
// Inbound messages arrive on a webhook mounted on the gateway HTTP mux.
type WhatsApp struct {
	cfg     config.WhatsAppConfig
	apiBase string
	bus     domain.MessageBus
	logger  *slog.Logger
	client  *http.Client
	mux     *http.ServeMux
}

type WhatsAppChannelConfig struct {
	Config  config.WhatsAppConfig
	APIBase string // override for tests
	Logger  *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.APIBase == "" {
		cfg.APIBase = whatsappAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		cfg:     cfg.Config,
		apiBase: cfg.APIBase,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WhatsApp) Name() domain.ChannelName { return domain.ChannelWhatsApp }

func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	bus.OnOutbound(domain.ChannelWhatsApp, func(msg domain.OutboundMessage) {
		if err := w.sendMessage(ctx, msg.ChatID, msg.Text); err != nil {
			w.logger.Error("whatsapp send failed", "err", err, "chat", msg.ChatID)
		}
	})

	w.mux = http.NewServeMux()
	webhookPath := w.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook/whatsapp"
	}

	w.mux.HandleFunc(webhookPath, func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.handleVerification(rw, r)
		case http.MethodPost:
			w.handleIncoming(rw, r)
		default:
			rw.Header().Set("Allow", "GET, HEAD, POST")
			http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	w.logger.Info("whatsapp channel ready", "webhook", webhookPath)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

func (w *WhatsApp) Send(ctx context.Context, chatID string, text string) error {
	return w.sendMessage(ctx, chatID, text)
}

// Handler returns the HTTP handler for the WhatsApp webhook (to be mounted on
// the gateway mux).
func (w *WhatsApp) Handler() http.Handler {
	if w.mux == nil {
		return http.NotFoundHandler()
	}
	return w.mux
}

// --- Webhook handlers ---

// handleVerification handles the WhatsApp webhook verification challenge.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming processes incoming WhatsApp messages.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	// Verify signature
	if w.cfg.AppSecret != "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(rw, "Bad request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		sig := r.Header.Get("X-Hub-Signature-256")
		if !w.verifySignature(body, sig) {
			w.logger.Warn("whatsapp invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				w.handleMessage(r.Context(), msg)
			}
		}
	}

	rw.WriteHeader(http.StatusOK)
}

// handleMessage converts one provider message to a canonical inbound event.
// Farmers send either text or crop photos; everything else is ignored.
func (w *WhatsApp) handleMessage(ctx context.Context, msg waMessage) {
	switch {
	case msg.Type == "text" && msg.Text != nil:
		w.logger.Info("whatsapp message received",
			"from", msg.From, "text_len", len(msg.Text.Body))
		w.bus.Publish(domain.InboundMessage{
			Channel:   domain.ChannelWhatsApp,
			ChatID:    msg.From,
			SenderID:  msg.From,
			Kind:      domain.KindText,
			Text:      msg.Text.Body,
			Timestamp: time.Now(),
		})

	case msg.Type == "image" && msg.Image != nil:
		data, mime, err := w.downloadMedia(ctx, msg.Image.ID, msg.Image.MimeType)
		if err != nil {
			w.logger.Error("whatsapp media download failed", "from", msg.From, "err", err)
			if sendErr := w.sendMessage(ctx, msg.From, "Error analyzing image. Try again."); sendErr != nil {
				w.logger.Error("whatsapp send failed", "err", sendErr, "chat", msg.From)
			}
			return
		}
		w.bus.Publish(domain.InboundMessage{
			Channel:   domain.ChannelWhatsApp,
			ChatID:    msg.From,
			SenderID:  msg.From,
			Kind:      domain.KindImage,
			ImageData: data,
			ImageMime: mime,
			Timestamp: time.Now(),
		})
	}
}

// downloadMedia resolves a media ID to its download URL and fetches the bytes.
func (w *WhatsApp) downloadMedia(ctx context.Context, mediaID, fallbackMime string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", w.apiBase+"/"+mediaID, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("resolve media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("resolve media: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("media metadata: %w", err)
	}
	mime := meta.MimeType
	if mime == "" {
		mime = fallbackMime
	}

	dlReq, err := http.NewRequestWithContext(ctx, "GET", meta.URL, nil)
	if err != nil {
		return nil, "", err
	}
	dlReq.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	dlResp, err := w.client.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: HTTP %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// sendMessage sends a text message via the WhatsApp Cloud API.
func (w *WhatsApp) sendMessage(ctx context.Context, to string, text string) error {
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waMessage `json:"messages"`
}

type waMessage struct {
	From  string   `json:"from"`
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Text  *waText  `json:"text,omitempty"`
	Image *waMedia `json:"image,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}
