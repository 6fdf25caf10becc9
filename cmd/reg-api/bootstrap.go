package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/RegBox/config"
	"github.com/BearBump/RegBox/internal/api/coordinator_api"
	"github.com/BearBump/RegBox/internal/broker/kafka"
	"github.com/BearBump/RegBox/internal/cache/rediscache"
	"github.com/BearBump/RegBox/internal/integrations/email"
	emailfake "github.com/BearBump/RegBox/internal/integrations/email/fake"
	"github.com/BearBump/RegBox/internal/integrations/email/mailhttp"
	"github.com/BearBump/RegBox/internal/integrations/executor"
	execfake "github.com/BearBump/RegBox/internal/integrations/executor/fake"
	"github.com/BearBump/RegBox/internal/integrations/executor/exechttp"
	"github.com/BearBump/RegBox/internal/integrations/payments"
	payfake "github.com/BearBump/RegBox/internal/integrations/payments/fake"
	"github.com/BearBump/RegBox/internal/integrations/payments/prochttp"
	"github.com/BearBump/RegBox/internal/integrations/sms"
	smsfake "github.com/BearBump/RegBox/internal/integrations/sms/fake"
	"github.com/BearBump/RegBox/internal/integrations/sms/twiliohttp"
	"github.com/BearBump/RegBox/internal/services/challenges"
	"github.com/BearBump/RegBox/internal/services/checkpoints"
	"github.com/BearBump/RegBox/internal/services/replies"
	"github.com/BearBump/RegBox/internal/services/reservations"
	"github.com/BearBump/RegBox/internal/services/settlement"
	"github.com/BearBump/RegBox/internal/storage/pgreg"
)

type regAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   regAPIOpts
	deps   regAPIDeps

	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapRegAPI() *regAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	// Секреты — ошибка конфигурации, а не рантайма: без них не стартуем.
	if cfg.RegBox.SettlementSharedSecret == "" {
		panic("regbox.settlement_shared_secret is required")
	}
	if cfg.RegBox.ExecutorSharedSecret == "" {
		panic("regbox.executor_shared_secret is required")
	}
	if cfg.RegBox.SMSWebhookAuthToken == "" {
		panic("regbox.sms_webhook_auth_token is required")
	}
	if cfg.RegBox.MagicLinkSecret == "" {
		panic("regbox.magic_link_secret is required")
	}

	httpAddr := cfg.RegBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.RegBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "reg-api"
	}
	topic := cfg.Kafka.OpenDetectedTopicName
	if topic == "" {
		topic = "registration.open_detected"
	}
	cacheTTL := time.Duration(cfg.RegBox.ReservationTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	ticketTTL := time.Duration(cfg.RegBox.TicketTTLSeconds) * time.Second
	if ticketTTL <= 0 {
		ticketTTL = 10 * time.Minute
	}
	notifyThrottle := time.Duration(cfg.RegBox.NotifyThrottleSeconds) * time.Second
	if notifyThrottle <= 0 {
		notifyThrottle = 2 * time.Minute
	}
	sweepInterval := time.Duration(cfg.RegBox.TicketSweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	checkpointKeep := cfg.RegBox.CheckpointKeep
	if checkpointKeep <= 0 {
		checkpointKeep = 10
	}
	checkpointMaxAge := time.Duration(cfg.RegBox.CheckpointMaxRecoverySeconds) * time.Second
	if checkpointMaxAge <= 0 {
		checkpointMaxAge = 30 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	// Внешние клиенты: без base_url работаем на локальных fake,
	// чтобы сервис поднимался без боевых интеграций.
	var smsSender sms.Sender = smsfake.New()
	if cfg.RegBox.SMSGatewayBaseURL != "" {
		smsSender = twiliohttp.New(cfg.RegBox.SMSGatewayBaseURL, cfg.RegBox.SMSAccountSID, cfg.RegBox.SMSAuthToken, cfg.RegBox.SMSFromNumber)
	}
	var emailSender email.Sender = emailfake.New()
	if cfg.RegBox.EmailAPIBaseURL != "" {
		emailSender = mailhttp.New(cfg.RegBox.EmailAPIBaseURL, cfg.RegBox.EmailAPIKey, cfg.RegBox.EmailFrom)
	}
	var payClient payments.Client = payfake.New()
	if cfg.RegBox.PaymentsBaseURL != "" {
		payClient = prochttp.New(cfg.RegBox.PaymentsBaseURL, cfg.RegBox.PaymentsAPIKey)
	}
	var execClient executor.Client = execfake.New()
	if cfg.RegBox.ExecutorBaseURL != "" {
		execClient = exechttp.New(cfg.RegBox.ExecutorBaseURL, cfg.RegBox.ExecutorSharedSecret)
	}

	cpSvc := checkpoints.New(st, checkpointKeep, checkpointMaxAge)
	chSvc := challenges.New(st, smsSender, emailSender, cpSvc, execClient,
		cfg.RegBox.MagicLinkSecret, cfg.RegBox.MagicLinkBaseURL).
		WithTTLs(ticketTTL, notifyThrottle)
	stSvc := settlement.New(st, payClient)
	rsSvc := reservations.New(st, rc, cacheTTL)
	rpSvc := replies.New(st, chSvc)

	api := coordinator_api.New(chSvc, cpSvc, stSvc, rsSvc, rpSvc,
		cfg.RegBox.SettlementSharedSecret, cfg.RegBox.ExecutorSharedSecret, cfg.RegBox.SMSWebhookAuthToken)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &regAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: regAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
			sweepInterval: sweepInterval,
		},
		deps: regAPIDeps{
			api:        api,
			challenges: chSvc,
			dispatcher: newDispatcher(st, execClient),
			consumer:   consumer,
		},
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgreg.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgreg.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *regAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}
