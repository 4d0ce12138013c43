package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

// JSONReceipt читает квитанцию в формате ответа verifyReceipt: поле
// receipt.original_application_version или одноимённое поле верхнего уровня.
type JSONReceipt struct {
	Path string
}

type jsonReceipt struct {
	OriginalApplicationVersion string `json:"original_application_version"`
	Receipt                    struct {
		OriginalApplicationVersion string `json:"original_application_version"`
	} `json:"receipt"`
}

func (r JSONReceipt) OriginalApplicationVersion(_ context.Context) (string, error) {
	const op = "legacy.JSONReceipt"
	data, err := readReceipt(r.Path)
	if err != nil || data == nil {
		return "", wrap(op, err)
	}

	var receipt jsonReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if v := receipt.Receipt.OriginalApplicationVersion; v != "" {
		return v, nil
	}
	return receipt.OriginalApplicationVersion, nil
}

// AppTransactionVerifier проверяет подписанные сведения об установке.
type AppTransactionVerifier interface {
	VerifyAppTransaction(signed string) (models.AppTransaction, error)
}

// AppTransactionFile читает подписанный JWS AppTransaction и проверяет его подпись.
type AppTransactionFile struct {
	Path     string
	Verifier AppTransactionVerifier
}

func (r AppTransactionFile) OriginalApplicationVersion(_ context.Context) (string, error) {
	const op = "legacy.AppTransactionFile"
	data, err := readReceipt(r.Path)
	if err != nil || data == nil {
		return "", wrap(op, err)
	}

	at, err := r.Verifier.VerifyAppTransaction(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return at.OriginalApplicationVersion, nil
}

// readReceipt возвращает nil без ошибки, если файла нет.
func readReceipt(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
