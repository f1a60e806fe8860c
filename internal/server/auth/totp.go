package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretBytes = 20
	totpDigits      = otp.DigitsSix
	qrImageSize     = 256
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPGate is the RFC 6238 second factor: SHA1, six digits, a fixed period
// and a symmetric verification window of skew steps.
type TOTPGate struct {
	issuer string
	period uint
	skew   uint
	now    func() time.Time
}

func NewTOTPGate(issuer string, period time.Duration, skew uint) *TOTPGate {
	p := uint(period / time.Second)
	if p == 0 {
		p = 30
	}
	return &TOTPGate{issuer: issuer, period: p, skew: skew, now: time.Now}
}

// GenerateSecret returns a fresh random shared secret, base32 without padding.
func (g *TOTPGate) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth://totp/ URI authenticator apps import.
func (g *TOTPGate) ProvisioningURI(account, secret string) (string, error) {
	account = strings.TrimSpace(account)
	secret = strings.TrimSpace(secret)
	if account == "" {
		return "", fmt.Errorf("%w: empty account label", common.ErrInvalidArgument)
	}
	if secret == "" {
		return "", fmt.Errorf("%w: empty totp secret", common.ErrInvalidArgument)
	}
	if _, err := totpEncoding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "="))); err != nil {
		return "", fmt.Errorf("%w: totp secret is not base32", common.ErrInvalidArgument)
	}

	label := url.PathEscape(g.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", g.issuer)
	v.Set("period", strconv.FormatUint(uint64(g.period), 10))
	v.Set("digits", strconv.Itoa(totpDigits.Length()))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode(), nil
}

// GenerateQRImage renders text as a square QR code PNG, base64 encoded.
// Failures wrap common.ErrEncoding.
func (g *TOTPGate) GenerateQRImage(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: nothing to encode", common.ErrEncoding)
	}

	code, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncoding, err)
	}
	scaled, err := barcode.Scale(code, qrImageSize, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncoding, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncoding, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyCode checks code against the current step and skew steps either side.
// A blank secret or code is false, never an error.
func (g *TOTPGate) VerifyCode(secret, code string) bool {
	return g.verifyAt(secret, code, g.now())
}

func (g *TOTPGate) verifyAt(secret, code string, t time.Time) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, t.UTC(), g.opts())
	return err == nil && ok
}

func (g *TOTPGate) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    g.period,
		Skew:      g.skew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
