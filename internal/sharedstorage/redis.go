package sharedstorage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/purchasekit/internal/config"
)

// Redis — общее хранилище в redis. Основное приложение и расширения подключаются к одной базе.
type Redis struct {
	Db *redis.Client
}

// InitRedis подключается к redis и проверяет соединение.
func InitRedis(ctx context.Context, cfg config.RedisConnection) (*Redis, error) {
	const op = "sharedstorage.InitRedis"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Redis{Db: db}, nil
}

// GetBool читает флаг. Отсутствие ключа не ошибка: found == false.
func (r *Redis) GetBool(ctx context.Context, key string) (bool, bool, error) {
	const op = "sharedstorage.GetBool"
	val, err := r.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}
	v, err := strconv.ParseBool(val)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}

// SetBool сохраняет флаг без срока жизни.
func (r *Redis) SetBool(ctx context.Context, key string, value bool) error {
	const op = "sharedstorage.SetBool"
	if err := r.Db.Set(ctx, key, strconv.FormatBool(value), 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение.
func (r *Redis) Close() error {
	return r.Db.Close()
}
