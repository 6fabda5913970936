package checkout

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v72"

	"github.com/tutorhub/wallet-api/internal/domain/wallet"
)

const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// Config carries the Stripe keys, redirect URLs and token pricing.
type Config struct {
	SecretKey  string
	PublicKey  string
	SuccessURL string
	CancelURL  string
	TokenPrice int64
	Currency   string
}

// WalletService is the wallet-side surface purchases flow through.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID string, role wallet.Role, email string) (*wallet.Wallet, error)
	ProcessPurchase(ctx context.Context, userID string, role wallet.Role, tokens int64, amount float64, sessionID string) (*wallet.Transaction, error)
	GetTokenBalance(ctx context.Context, userID string, role wallet.Role) (int64, error)
}

// SessionInfo is returned to the client after a checkout session is
// created.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// ConfirmResult reports a processed purchase.
type ConfirmResult struct {
	Tokens       int64   `json:"tokens"`
	Amount       float64 `json:"amount"`
	TokenBalance int64   `json:"tokenBalance"`
}

type Service struct {
	cfg     Config
	client  SessionClient
	wallets WalletService
}

func NewService(cfg Config, client SessionClient, wallets WalletService) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "cop"
	}
	return &Service{cfg: cfg, client: client, wallets: wallets}
}

func (s *Service) PublicKey() string {
	return s.cfg.PublicKey
}

// CreateSession opens a Stripe checkout session for buying quantity
// tokens. The user id and token count ride in the session metadata so
// confirmation can credit the right wallet.
func (s *Service) CreateSession(userID string, quantity int64, currency, name string) (*SessionInfo, error) {
	if quantity <= 0 {
		quantity = 1
	}
	if currency == "" {
		currency = s.cfg.Currency
	}
	if name == "" {
		name = "Token"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURLWithSession(s.cfg.SuccessURL)),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(currency)),
					UnitAmount: stripe.Int64(s.cfg.TokenPrice),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(name),
						Description: stripe.String("Platform tokens"),
					},
				},
			},
		},
	}
	params.AddMetadata("userId", userID)
	params.AddMetadata("tokens", strconv.FormatInt(quantity, 10))
	params.AddMetadata("tokenPrice", strconv.FormatInt(s.cfg.TokenPrice, 10))

	sess, err := s.client.Create(params)
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sess.ID).Int64("tokens", quantity).Msg("Checkout session created")
	return &SessionInfo{SessionID: sess.ID, URL: sess.URL}, nil
}

// ConfirmPayment verifies a paid checkout session with Stripe and
// credits the purchased tokens to the buyer's student wallet. Browsers
// sometimes append a URL fragment to the session id; everything from
// the first '#' is dropped before lookup. Confirming the same session
// twice credits the wallet once.
func (s *Service) ConfirmPayment(ctx context.Context, rawSessionID string) (*ConfirmResult, error) {
	sessionID := normalizeSessionID(rawSessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	sess, err := s.client.Retrieve(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != stripe.CheckoutSessionStatusComplete || sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrPaymentNotCompleted
	}

	userID := sess.Metadata["userId"]
	tokensStr := sess.Metadata["tokens"]
	priceStr := sess.Metadata["tokenPrice"]
	if userID == "" || tokensStr == "" || priceStr == "" {
		return nil, ErrIncompleteMetadata
	}

	tokens, err := strconv.ParseInt(tokensStr, 10, 64)
	if err != nil {
		return nil, ErrIncompleteMetadata
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return nil, ErrIncompleteMetadata
	}
	amount := float64(tokens) * price

	if _, err := s.wallets.GetOrCreateWallet(ctx, userID, wallet.RoleStudent, ""); err != nil {
		return nil, err
	}
	if _, err := s.wallets.ProcessPurchase(ctx, userID, wallet.RoleStudent, tokens, amount, sessionID); err != nil {
		return nil, err
	}
	balance, err := s.wallets.GetTokenBalance(ctx, userID, wallet.RoleStudent)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int64("tokens", tokens).
		Msg("Payment confirmed")
	return &ConfirmResult{Tokens: tokens, Amount: amount, TokenBalance: balance}, nil
}

func normalizeSessionID(raw string) string {
	if i := strings.IndexByte(raw, '#'); i != -1 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func successURLWithSession(successURL string) string {
	if strings.Contains(successURL, sessionIDPlaceholder) {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id=" + sessionIDPlaceholder
}
