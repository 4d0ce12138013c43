// Package verify проверяет подписанные транзакции магазина.
//
// Транзакции приходят в виде компактного JWS (ES256) с цепочкой сертификатов в заголовке x5c.
// JWSVerifier проверяет цепочку до доверенного корневого сертификата, подпись ключом листового
// сертификата и идентификатор приложения, после чего раскладывает claims в models.Transaction.
package verify

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/purchasekit/internal/models"
	"github.com/magabrotheeeer/purchasekit/internal/store"
)

var (
	errMissingChain   = errors.New("x5c certificate chain is missing")
	errBundleMismatch = errors.New("bundle id mismatch")
)

// Checked разворачивает результат проверки: возвращает транзакцию, если подпись проверена,
// иначе ошибку store.ErrFailedStoreVerification. Повторных попыток нет.
func Checked(result store.VerificationResult) (models.Transaction, error) {
	if result.Err == nil {
		return result.Transaction, nil
	}
	if errors.Is(result.Err, store.ErrFailedStoreVerification) {
		return models.Transaction{}, result.Err
	}
	return models.Transaction{}, fmt.Errorf("%w: %v", store.ErrFailedStoreVerification, result.Err)
}

// JWSVerifier проверяет JWS магазина по доверенному корневому сертификату.
type JWSVerifier struct {
	roots    *x509.CertPool
	bundleID string
	now      func() time.Time
}

// NewJWSVerifier создаёт проверяющего по PEM корневых сертификатов.
// Пустой bundleID отключает проверку идентификатора приложения.
func NewJWSVerifier(rootPEM []byte, bundleID string) (*JWSVerifier, error) {
	const op = "verify.NewJWSVerifier"
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootPEM) {
		return nil, fmt.Errorf("%s: no certificates in root pem", op)
	}
	return &JWSVerifier{
		roots:    pool,
		bundleID: bundleID,
		now:      time.Now,
	}, nil
}

// Verify проверяет подписанную транзакцию. Даже при ошибке проверки Transaction
// содержит разобранные (непроверенные) поля, если их удалось прочитать.
func (v *JWSVerifier) Verify(signed string) store.VerificationResult {
	var claims transactionClaims
	err := v.parse(signed, &claims)
	result := store.VerificationResult{
		Transaction: claims.transaction(),
		Signed:      signed,
	}
	if err == nil {
		err = v.checkBundle(claims.BundleID)
	}
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", store.ErrFailedStoreVerification, err)
	}
	return result
}

// VerifyAppTransaction проверяет подписанные сведения об установке приложения.
func (v *JWSVerifier) VerifyAppTransaction(signed string) (models.AppTransaction, error) {
	const op = "verify.VerifyAppTransaction"
	var claims appTransactionClaims
	if err := v.parse(signed, &claims); err != nil {
		return models.AppTransaction{}, fmt.Errorf("%s: %w: %v", op, store.ErrFailedStoreVerification, err)
	}
	if err := v.checkBundle(claims.BundleID); err != nil {
		return models.AppTransaction{}, fmt.Errorf("%s: %w: %v", op, store.ErrFailedStoreVerification, err)
	}
	return claims.appTransaction(), nil
}

// VerifyNotification проверяет signedPayload уведомления App Store Server Notifications V2.
// Вложенная транзакция не проверяется — её нужно передать в Verify отдельно.
func (v *JWSVerifier) VerifyNotification(signedPayload string) (Notification, error) {
	const op = "verify.VerifyNotification"
	var claims notificationClaims
	if err := v.parse(signedPayload, &claims); err != nil {
		return Notification{}, fmt.Errorf("%s: %w: %v", op, store.ErrFailedStoreVerification, err)
	}
	if err := v.checkBundle(claims.Data.BundleID); err != nil {
		return Notification{}, fmt.Errorf("%s: %w: %v", op, store.ErrFailedStoreVerification, err)
	}
	return claims.notification(), nil
}

func (v *JWSVerifier) parse(signed string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(signed, claims, v.keyFromChain)
	return err
}

func (v *JWSVerifier) checkBundle(bundleID string) error {
	if v.bundleID != "" && bundleID != v.bundleID {
		return fmt.Errorf("%w: got %q", errBundleMismatch, bundleID)
	}
	return nil
}

// keyFromChain проверяет цепочку x5c и возвращает открытый ключ листового сертификата.
func (v *JWSVerifier) keyFromChain(token *jwt.Token) (any, error) {
	raw, ok := token.Header["x5c"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errMissingChain
	}

	certs := make([]*x509.Certificate, 0, len(raw))
	for i, item := range raw {
		encoded, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("x5c[%d] is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("verify certificate chain: %w", err)
	}

	key, ok := certs[0].PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("leaf certificate key is %T, want ECDSA", certs[0].PublicKey)
	}
	return key, nil
}
