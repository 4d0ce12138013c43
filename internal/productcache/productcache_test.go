package productcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/purchasekit/internal/models"
)

type SourceMock struct{ mock.Mock }

func (m *SourceMock) Products(ctx context.Context, ids []string) ([]models.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func TestLoad_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	ids := []string{"app.monthly", "app.yearly"}
	source := new(SourceMock)
	source.On("Products", ctx, ids).Return([]models.Product{
		{ID: "app.yearly", DisplayPrice: "$19.99"},
		{ID: "app.monthly", DisplayPrice: "$2.99"},
	}, nil).Once()

	c := New()
	assert.False(t, c.Loaded())

	require.NoError(t, c.Load(ctx, source, ids))
	require.NoError(t, c.Load(ctx, source, ids))

	assert.True(t, c.Loaded())
	assert.Equal(t, 2, c.Len())

	p, ok := c.Product("app.yearly")
	require.True(t, ok)
	assert.Equal(t, "$19.99", p.DisplayPrice)

	_, ok = c.Product("app.weekly")
	assert.False(t, ok)

	ordered := c.Products([]string{"app.monthly", "app.weekly", "app.yearly"})
	require.Len(t, ordered, 2)
	assert.Equal(t, "app.monthly", ordered[0].ID)
	assert.Equal(t, "app.yearly", ordered[1].ID)

	source.AssertNumberOfCalls(t, "Products", 1)
}

func TestLoad_FailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	ids := []string{"app.monthly"}
	source := new(SourceMock)
	source.On("Products", ctx, ids).Return(nil, errors.New("network down")).Once()

	c := New()
	err := c.Load(ctx, source, ids)
	assert.ErrorContains(t, err, "network down")

	require.NoError(t, c.Load(ctx, source, ids))
	assert.True(t, c.Loaded())
	assert.Equal(t, 0, c.Len())
	source.AssertNumberOfCalls(t, "Products", 1)
}
