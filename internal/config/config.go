/**
 * @description
 * This package handles the configuration management for the payment service. It uses
 * the Viper library to read configuration from environment variables (with an optional
 * .env file), providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: Application configuration.
 */

package config

import (
	"encoding/json"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/fanvault/payment-service/internal/domain"
)

// Config holds all the configuration variables for the payment service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	RedisReplayPrefix string `mapstructure:"REDIS_REPLAY_PREFIX"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	AuthJWKSURL       string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`

	CatalogServiceURL string `mapstructure:"CATALOG_SERVICE_URL"`
	ProfileServiceURL string `mapstructure:"PROFILE_SERVICE_URL"`

	WalletAAppID     string `mapstructure:"WALLET_A_APP_ID"`
	WalletASecret    string `mapstructure:"WALLET_A_SECRET"`
	WalletABaseURL   string `mapstructure:"WALLET_A_BASE_URL"`
	WalletANotifyURL string `mapstructure:"WALLET_A_NOTIFY_URL"`

	WalletBMerchantID string `mapstructure:"WALLET_B_MERCHANT_ID"`
	WalletBSecret     string `mapstructure:"WALLET_B_SECRET"`
	WalletBGatewayURL string `mapstructure:"WALLET_B_GATEWAY_URL"`
	WalletBNotifyURL  string `mapstructure:"WALLET_B_NOTIFY_URL"`

	CardPublicKey     string `mapstructure:"CARD_PUBLIC_KEY"`
	CardWebhookSecret string `mapstructure:"CARD_WEBHOOK_SECRET"`
	CardBaseURL       string `mapstructure:"CARD_BASE_URL"`
	CardCheckoutURL   string `mapstructure:"CARD_CHECKOUT_URL"`

	IAPVerifyURL        string `mapstructure:"IAP_VERIFY_URL"`
	IAPSandboxVerifyURL string `mapstructure:"IAP_SANDBOX_VERIFY_URL"`
	IAPSharedSecret     string `mapstructure:"IAP_SHARED_SECRET"`
	IAPBundleID         string `mapstructure:"IAP_BUNDLE_ID"`

	DefaultCurrency        string  `mapstructure:"DEFAULT_CURRENCY"`
	TipPlatformFeePercent  float64 `mapstructure:"TIP_PLATFORM_FEE_PERCENT"`
	DefaultSharingRatioBps int32   `mapstructure:"DEFAULT_SHARING_RATIO_BPS"`
	MinWithdrawalAmount    int64   `mapstructure:"MIN_WITHDRAWAL_AMOUNT"`
	EarningsMaturityDays   int     `mapstructure:"EARNINGS_MATURITY_DAYS"`
	OrderExpiryMinutes     int     `mapstructure:"ORDER_EXPIRY_MINUTES"`
	CallbackReplayTTLSec   int     `mapstructure:"CALLBACK_REPLAY_TTL_SECONDS"`

	SettlementPromotionSchedule string `mapstructure:"SETTLEMENT_PROMOTION_SCHEDULE"`
	OrderExpirySchedule         string `mapstructure:"ORDER_EXPIRY_SCHEDULE"`

	// Plans is the subscription plan catalog, overridable via the SUBSCRIPTION_PLANS
	// env variable (JSON array).
	Plans []domain.Plan `mapstructure:"-"`
}

// PlanByID resolves one plan from the catalog.
func (c *Config) PlanByID(planID string) (*domain.Plan, bool) {
	for i := range c.Plans {
		if c.Plans[i].ID == planID {
			return &c.Plans[i], true
		}
	}
	return nil, false
}

func defaultPlans(currency string) []domain.Plan {
	return []domain.Plan{
		{ID: "monthly", Price: 999, Currency: currency, DurationDays: 30, ExternalProductID: "com.fanvault.sub.monthly"},
		{ID: "quarterly", Price: 2699, Currency: currency, DurationDays: 90, ExternalProductID: "com.fanvault.sub.quarterly"},
		{ID: "yearly", Price: 9999, Currency: currency, DurationDays: 365, ExternalProductID: "com.fanvault.sub.yearly"},
	}
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("REDIS_REPLAY_PREFIX", "fanvault:payment:replay")
	viper.SetDefault("DEFAULT_CURRENCY", "USD")
	viper.SetDefault("TIP_PLATFORM_FEE_PERCENT", 10.0)
	viper.SetDefault("DEFAULT_SHARING_RATIO_BPS", 7000)
	viper.SetDefault("MIN_WITHDRAWAL_AMOUNT", 5000)
	viper.SetDefault("EARNINGS_MATURITY_DAYS", 30)
	viper.SetDefault("ORDER_EXPIRY_MINUTES", 30)
	viper.SetDefault("CALLBACK_REPLAY_TTL_SECONDS", 300)
	viper.SetDefault("SETTLEMENT_PROMOTION_SCHEDULE", "0 2 * * *")
	viper.SetDefault("ORDER_EXPIRY_SCHEDULE", "*/5 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "REDIS_URL", "REDIS_REPLAY_PREFIX", "RABBITMQ_URL",
		"AUTH_JWKS_URL", "INTERNAL_API_KEY",
		"CATALOG_SERVICE_URL", "PROFILE_SERVICE_URL",
		"WALLET_A_APP_ID", "WALLET_A_SECRET", "WALLET_A_BASE_URL", "WALLET_A_NOTIFY_URL",
		"WALLET_B_MERCHANT_ID", "WALLET_B_SECRET", "WALLET_B_GATEWAY_URL", "WALLET_B_NOTIFY_URL",
		"CARD_PUBLIC_KEY", "CARD_WEBHOOK_SECRET", "CARD_BASE_URL", "CARD_CHECKOUT_URL",
		"IAP_VERIFY_URL", "IAP_SANDBOX_VERIFY_URL", "IAP_SHARED_SECRET", "IAP_BUNDLE_ID",
		"DEFAULT_CURRENCY", "TIP_PLATFORM_FEE_PERCENT", "DEFAULT_SHARING_RATIO_BPS",
		"MIN_WITHDRAWAL_AMOUNT", "EARNINGS_MATURITY_DAYS", "ORDER_EXPIRY_MINUTES",
		"CALLBACK_REPLAY_TTL_SECONDS", "SETTLEMENT_PROMOTION_SCHEDULE", "ORDER_EXPIRY_SCHEDULE",
		"SUBSCRIPTION_PLANS", "MIN_WITHDRAWAL",
	} {
		_ = viper.BindEnv(key)
	}

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// Allow specifying the withdrawal floor in whole currency units via MIN_WITHDRAWAL.
	if viper.IsSet("MIN_WITHDRAWAL") {
		raw := strings.TrimSpace(viper.GetString("MIN_WITHDRAWAL"))
		if raw != "" {
			value, parseErr := strconv.ParseFloat(raw, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid MIN_WITHDRAWAL\" value=%q err=%v", raw, parseErr)
			} else {
				config.MinWithdrawalAmount = int64(math.Round(value * 100))
			}
		}
	}

	if config.MinWithdrawalAmount < 0 {
		log.Printf("level=warn component=config msg=\"negative withdrawal floor configured; coercing to zero\" amount=%d", config.MinWithdrawalAmount)
		config.MinWithdrawalAmount = 0
	}
	if config.TipPlatformFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative tip fee percent configured; coercing to zero\" fee_percent=%f", config.TipPlatformFeePercent)
		config.TipPlatformFeePercent = 0
	}
	if config.TipPlatformFeePercent > 100 {
		log.Printf("level=warn component=config msg=\"tip fee percent too high; capping at 100\" fee_percent=%f", config.TipPlatformFeePercent)
		config.TipPlatformFeePercent = 100
	}
	if config.DefaultSharingRatioBps <= 0 || config.DefaultSharingRatioBps > 10000 {
		log.Printf("level=warn component=config msg=\"sharing ratio out of range; using default\" ratio_bps=%d", config.DefaultSharingRatioBps)
		config.DefaultSharingRatioBps = 7000
	}
	if config.EarningsMaturityDays <= 0 {
		config.EarningsMaturityDays = 30
	}
	if config.OrderExpiryMinutes <= 0 {
		config.OrderExpiryMinutes = 30
	}
	if config.CallbackReplayTTLSec <= 0 {
		config.CallbackReplayTTLSec = 300
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisReplayPrefix = strings.TrimSpace(config.RedisReplayPrefix)
	if config.RedisReplayPrefix == "" {
		config.RedisReplayPrefix = "fanvault:payment:replay"
	}

	config.Plans = defaultPlans(config.DefaultCurrency)
	if rawPlans := strings.TrimSpace(viper.GetString("SUBSCRIPTION_PLANS")); rawPlans != "" {
		var plans []domain.Plan
		if jsonErr := json.Unmarshal([]byte(rawPlans), &plans); jsonErr != nil {
			log.Printf("level=warn component=config msg=\"invalid SUBSCRIPTION_PLANS json; using default catalog\" err=%v", jsonErr)
		} else if len(plans) > 0 {
			for i := range plans {
				if plans[i].Currency == "" {
					plans[i].Currency = config.DefaultCurrency
				}
			}
			config.Plans = plans
		}
	}

	return
}
