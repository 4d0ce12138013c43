// Package legacy определяет пользователей, установивших приложение до перехода на подписки.
//
// Версия первоначальной установки читается из локальной квитанции и сравнивается с номером
// сборки-порога: установившие раньше порога получают устаревший пожизненный тариф.
package legacy

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/magabrotheeeer/purchasekit/internal/lib/sl"
)

// unknownVersion магазин подставляет, когда исходная версия неизвестна.
const unknownVersion = "1.0"

// Classify возвращает true, если version — целый номер сборки меньше threshold.
// Пустая, нечисловая версия и "1.0" не считаются устаревшими; threshold <= 0 отключает проверку.
func Classify(version string, threshold int) bool {
	version = strings.TrimSpace(version)
	if threshold <= 0 || version == "" || version == unknownVersion {
		return false
	}
	build, err := strconv.Atoi(version)
	if err != nil || build <= 0 {
		return false
	}
	return build < threshold
}

// Reader читает исходную версию приложения из квитанции.
// Отсутствующая квитанция — это пустая строка без ошибки.
type Reader interface {
	OriginalApplicationVersion(ctx context.Context) (string, error)
}

// Classifier кэширует ответ на всё время жизни процесса.
type Classifier struct {
	log       *slog.Logger
	reader    Reader
	threshold int

	once    sync.Once
	version string
	legacy  bool
}

// NewClassifier создаёт классификатор. reader может быть nil: тогда пользователь не считается устаревшим.
func NewClassifier(log *slog.Logger, reader Reader, threshold int) *Classifier {
	return &Classifier{
		log:       log,
		reader:    reader,
		threshold: threshold,
	}
}

// IsLegacyUser читает квитанцию при первом вызове и возвращает сохранённый ответ при последующих.
// Ошибка чтения записывается в лог, а пользователь считается не устаревшим.
func (c *Classifier) IsLegacyUser(ctx context.Context) bool {
	const op = "legacy.IsLegacyUser"
	c.once.Do(func() {
		if c.reader == nil || c.threshold <= 0 {
			return
		}
		log := c.log.With(slog.String("op", op))

		version, err := c.reader.OriginalApplicationVersion(ctx)
		if err != nil {
			log.Warn("failed to read receipt", sl.Err(err))
			return
		}
		c.version = version
		c.legacy = Classify(version, c.threshold)
		log.Info("legacy user classified",
			slog.String("original_version", version),
			slog.Int("threshold", c.threshold),
			slog.Bool("legacy", c.legacy),
		)
	})
	return c.legacy
}

// OriginalVersion возвращает прочитанную из квитанции версию.
func (c *Classifier) OriginalVersion(ctx context.Context) string {
	c.IsLegacyUser(ctx)
	return c.version
}
