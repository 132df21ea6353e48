package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/cbcbank/ledger/internal/errors"
	"github.com/cbcbank/ledger/internal/money"
)

const DefaultQRCodeTimeout = 5 * time.Minute

var ErrQRCodeExpired = fmt.Errorf("%w: invalid or expired QR code", errors.ErrInvalidInput)

// TransferRequest is what a payee encodes into a QR code: pay this amount
// into this account. The nonce doubles as the transfer reference.
type TransferRequest struct {
	UserID        string       `json:"userId"`
	AccountNumber string       `json:"accountNumber"`
	Amount        money.Amount `json:"amount"`
	Nonce         string       `json:"nonce"`
	Timestamp     int64        `json:"timestamp"`
}

func (r *TransferRequest) Reference() string {
	return "qr:" + r.Nonce
}

type QRService struct {
	redis   *redis.Client
	timeout time.Duration
	now     func() time.Time
	nonce   func() string
}

func NewQRService(redis *redis.Client, timeout time.Duration) *QRService {
	if timeout <= 0 {
		timeout = DefaultQRCodeTimeout
	}
	return &QRService{
		redis:   redis,
		timeout: timeout,
		now:     time.Now,
		nonce:   randomNonce,
	}
}

// GenerateQRCode stores the request for the configured timeout and returns
// the code with a base64 PNG rendering of it.
func (s *QRService) GenerateQRCode(ctx context.Context, userID, accountNumber string, amount money.Amount) (string, string, error) {
	if s.redis == nil {
		return "", "", fmt.Errorf("%w: QR codes require redis", errors.ErrUnavailable)
	}
	if !amount.IsPositive() {
		return "", "", errors.ErrInvalidAmount
	}

	request := TransferRequest{
		UserID:        userID,
		AccountNumber: accountNumber,
		Amount:        amount,
		Nonce:         s.nonce(),
		Timestamp:     s.now().Unix(),
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", "", err
	}

	qrCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", qrCode)
	if err := s.redis.Set(ctx, key, jsonData, s.timeout).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(qrCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return qrCode, qrImage, nil
}

// ProcessQRCode redeems a code once; a second scan finds nothing.
func (s *QRService) ProcessQRCode(ctx context.Context, qrData string) (*TransferRequest, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("%w: QR codes require redis", errors.ErrUnavailable)
	}

	key := fmt.Sprintf("qr:%s", qrData)

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrQRCodeExpired
	}
	if err != nil {
		return nil, err
	}

	var request TransferRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, err
	}

	return &request, nil
}

func randomNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
