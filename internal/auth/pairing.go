package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/image/draw"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
	"github.com/msbrogli/tmuxdeck/internal/model"
)

// pairingTokenTTL bounds how long a QR code stays scannable (§3 PairingToken).
const pairingTokenTTL = 5 * time.Minute

// qrPixels is the rendered PNG's side length.
const qrPixels = 384

// Pairing issues and redeems short-lived mobile-onboarding tokens (§4.F added).
type Pairing struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
}

func NewPairing() *Pairing {
	return &Pairing{tokens: make(map[string]time.Time)}
}

// Issue mints a PairingToken and its PNG QR-code rendering of pairURL
// (the caller builds pairURL, e.g. "https://host/auth/pair?token=...").
func (p *Pairing) Issue(pairURLFor func(token string) string) (model.PairingToken, []byte, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return model.PairingToken{}, nil, apperr.Wrap(apperr.Internal, err, "generate pairing token")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := time.Now().Add(pairingTokenTTL)

	p.mu.Lock()
	p.tokens[token] = expiresAt
	p.mu.Unlock()

	png, err := renderQR(pairURLFor(token))
	if err != nil {
		return model.PairingToken{}, nil, err
	}
	return model.PairingToken{Token: token, ExpiresAt: expiresAt}, png, nil
}

// Redeem consumes a pairing token exactly once.
func (p *Pairing) Redeem(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, ok := p.tokens[token]
	if !ok {
		return false
	}
	delete(p.tokens, token)
	return time.Now().Before(exp)
}

// renderQR encodes text as a QR code (gozxing's encode path) and rasterizes
// it to a PNG at a fixed pixel size, upscaling the intrinsic module matrix
// with nearest-neighbor so module edges stay crisp for camera scanning.
func renderQR(text string) ([]byte, error) {
	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(text, gozxing.BarcodeFormat_QR_CODE, qrPixels, qrPixels, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "encode pairing qr")
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	small := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				small.SetGray(x, y, color.Gray{Y: 0})
			} else {
				small.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	dst := image.NewGray(image.Rect(0, 0, qrPixels, qrPixels))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "encode pairing qr png")
	}
	return out.Bytes(), nil
}
