package models

// Product — описание продукта, полученное из магазина: цена, название, вводное предложение.
// Кэшируется один раз за время жизни процесса.
type Product struct {
	ID                 string             `json:"id" yaml:"id"`
	DisplayName        string             `json:"display_name" yaml:"display_name"`
	Description        string             `json:"description,omitempty" yaml:"description"`
	DisplayPrice       string             `json:"display_price" yaml:"display_price"`
	PriceMicros        int64              `json:"price_micros" yaml:"price_micros"`
	CurrencyCode       string             `json:"currency_code" yaml:"currency_code"`
	SubscriptionPeriod string             `json:"subscription_period,omitempty" yaml:"subscription_period"` // ISO 8601: P1W, P1M, P1Y
	IntroductoryOffer  *IntroductoryOffer `json:"introductory_offer,omitempty" yaml:"introductory_offer"`
}

// IntroductoryOffer — условия вводного предложения подписки.
type IntroductoryOffer struct {
	PaymentMode  string `json:"payment_mode" yaml:"payment_mode"` // free_trial, pay_as_you_go, pay_up_front
	Period       string `json:"period" yaml:"period"`
	PeriodCount  int    `json:"period_count" yaml:"period_count"`
	DisplayPrice string `json:"display_price,omitempty" yaml:"display_price"`
}

// HasFreeTrial сообщает, начинается ли подписка с бесплатного периода.
func (p Product) HasFreeTrial() bool {
	return p.IntroductoryOffer != nil && p.IntroductoryOffer.PaymentMode == "free_trial"
}
