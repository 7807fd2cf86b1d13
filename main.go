package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"energy-gauge/internal/auth"
	card "energy-gauge/internal/card/domain"
	energyapp "energy-gauge/internal/energy/application"
	"energy-gauge/internal/energy/infrastructure/hass"
	"energy-gauge/internal/energy/infrastructure/influx"
	energypostgres "energy-gauge/internal/energy/infrastructure/postgres"
	gaugeapp "energy-gauge/internal/gauge/application"
	gaugehttp "energy-gauge/internal/gauge/interfaces/http"
	"energy-gauge/internal/gauge/notify"
	"energy-gauge/internal/logging"
	"energy-gauge/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfig()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cards, err := card.LoadFile(cfg.CardsConfig)
	if err != nil {
		logger.Fatal("cards config error", zap.String("path", cfg.CardsConfig), zap.Error(err))
	}

	hassClient, err := hass.New(hass.Config{
		URL:            cfg.HassURL,
		Token:          cfg.HassToken,
		RequestTimeout: cfg.HassRequestTimeout,
		BreakerTimeout: cfg.HassBreakerTimeout,
	}, logger.Named("hass"))
	if err != nil {
		logger.Fatal("hass client error", zap.Error(err))
	}
	defer hassClient.Close()
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.HassRequestTimeout)
	if err := hassClient.Connect(connectCtx); err != nil {
		logger.Warn("hass connect failed, retrying on first request", zap.Error(err))
	}
	cancelConnect()

	var db *sql.DB
	var stats energyapp.StatisticsSource = hassClient
	switch {
	case cfg.RecorderDSN != "":
		db, err = sql.Open("pgx", cfg.RecorderDSN)
		if err != nil {
			logger.Fatal("recorder db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("recorder db ping error", zap.Error(err))
		}
		reader, err := energypostgres.NewRecorderStatisticsReader(db, energypostgres.WithLocation(cfg.Location))
		if err != nil {
			logger.Fatal("recorder reader error", zap.Error(err))
		}
		stats = reader
		logger.Info("statistics source", zap.String("source", "recorder"))
	case cfg.InfluxURL != "":
		reader, err := influx.NewStatisticsReader(influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, cfg.Location)
		if err != nil {
			logger.Fatal("influx reader error", zap.Error(err))
		}
		defer reader.Close()
		stats = reader
		logger.Info("statistics source", zap.String("source", "influx"))
	default:
		logger.Info("statistics source", zap.String("source", "hass"))
	}

	metrics.Init(db, logger)

	loader, err := energyapp.NewLoader(hassClient, stats)
	if err != nil {
		logger.Fatal("energy loader error", zap.Error(err))
	}
	registry, err := energyapp.NewRegistry(hassClient, loader,
		energyapp.WithLogger(logging.NewThrottled(logger.Named("energy"), time.Minute)),
		energyapp.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	if err != nil {
		logger.Fatal("energy registry error", zap.Error(err))
	}

	notifier, closeNotifiers := buildNotifier(cfg, logger)
	defer closeNotifiers()

	serviceOpts := []gaugeapp.ServiceOption{gaugeapp.WithLogger(logger.Named("gauge"))}
	if notifier.Len() > 0 {
		serviceOpts = append(serviceOpts, gaugeapp.WithNotifier(notifier))
	}
	gaugeService, err := gaugeapp.NewService(registry, serviceOpts...)
	if err != nil {
		logger.Fatal("gauge service error", zap.Error(err))
	}

	broker := gaugehttp.NewSSEBroker(logger.Named("stream"))
	cancelListen := gaugeService.Listen(broker.Notify)
	defer cancelListen()

	if err := gaugeService.Start(cards); err != nil {
		logger.Fatal("gauge start error", zap.Error(err))
	}
	defer gaugeService.Stop()
	logger.Info("gauges started", zap.Int("cards", len(cards)))

	gaugeHandler, err := gaugehttp.NewGaugeHandler(gaugeService, logger.Named("http"))
	if err != nil {
		logger.Fatal("gauge handler error", zap.Error(err))
	}
	cardHandler, err := gaugehttp.NewCardHandler(gaugeService)
	if err != nil {
		logger.Fatal("card handler error", zap.Error(err))
	}
	collectionHandler, err := gaugehttp.NewCollectionHandler(registry)
	if err != nil {
		logger.Fatal("collection handler error", zap.Error(err))
	}

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		logger.Fatal("auth verifier error", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(verifier, auth.NewPolicy("/healthz", "/metrics"))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/gauges", gaugeHandler)
	mux.Handle("/api/v1/gauges/", gaugeHandler)
	mux.Handle("/api/v1/gauges/stream", gaugehttp.NewStreamHandler(broker, gaugeService.Readings))
	mux.Handle("/api/v1/cards/", cardHandler)
	mux.Handle("/api/v1/collections", collectionHandler)
	mux.Handle("/api/v1/collections/", collectionHandler)
	mux.Handle("/api/v1/energy/preferences", collectionHandler)
	mux.Handle("/api/v1/energy/preferences/clear", collectionHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", zap.Error(err))
	}
}

func buildNotifier(cfg config, logger *zap.Logger) (*notify.MultiNotifier, func()) {
	var (
		notifiers []gaugeapp.Notifier
		closers   []func()
	)
	if cfg.MQTTBroker != "" {
		mqttNotifier, err := notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         byte(cfg.MQTTQoS),
			Retain:      true,
		}, logger.Named("mqtt"))
		if err != nil {
			logger.Error("mqtt notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, mqttNotifier)
			closers = append(closers, mqttNotifier.Close)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Acks:    cfg.KafkaAcks,
		})
		if err != nil {
			logger.Error("kafka notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, kafkaNotifier)
			closers = append(closers, func() { _ = kafkaNotifier.Close() })
		}
	}
	if cfg.AlertWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatal("alert webhook error", zap.Error(err))
		}
		tpl, err := notify.NewTemplate(cfg.AlertTemplate)
		if err != nil {
			logger.Fatal("alert template error", zap.Error(err))
		}
		bandNotifier, err := notify.NewBandNotifier(channel, tpl,
			notify.WithCooldown(cfg.AlertCooldown),
			notify.WithDedupeWindow(cfg.AlertDedupeWindow),
		)
		if err != nil {
			logger.Fatal("band notifier error", zap.Error(err))
		}
		notifiers = append(notifiers, bandNotifier)
	}
	return notify.NewMultiNotifier(notifiers...), func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

type config struct {
	HTTPAddr           string
	CardsConfig        string
	JWTSecret          string
	LogLevel           string
	LogFormat          string
	Location           *time.Location
	HassURL            string
	HassToken          string
	HassRequestTimeout time.Duration
	HassBreakerTimeout time.Duration
	RefreshTimeout     time.Duration
	RecorderDSN        string
	InfluxURL          string
	InfluxToken        string
	InfluxOrg          string
	InfluxBucket       string
	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopicPrefix    string
	MQTTQoS            int
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaAcks          int
	AlertWebhookURL    string
	AlertTemplate      string
	AlertCooldown      time.Duration
	AlertDedupeWindow  time.Duration
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		CardsConfig:        getenvDefault("CARDS_CONFIG", "cards.yaml"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LogFormat:          getenvDefault("LOG_FORMAT", "json"),
		HassURL:            getenvDefault("HASS_URL", ""),
		HassToken:          getenvDefault("HASS_TOKEN", ""),
		HassRequestTimeout: getenvDuration("HASS_REQUEST_TIMEOUT", 30*time.Second),
		HassBreakerTimeout: getenvDuration("HASS_BREAKER_TIMEOUT", 30*time.Second),
		RefreshTimeout:     getenvDuration("REFRESH_TIMEOUT", 60*time.Second),
		RecorderDSN:        getenvDefault("RECORDER_DSN", ""),
		InfluxURL:          getenvDefault("INFLUX_URL", ""),
		InfluxToken:        getenvDefault("INFLUX_TOKEN", ""),
		InfluxOrg:          getenvDefault("INFLUX_ORG", ""),
		InfluxBucket:       getenvDefault("INFLUX_BUCKET", "home_assistant"),
		MQTTBroker:         getenvDefault("MQTT_BROKER", ""),
		MQTTClientID:       getenvDefault("MQTT_CLIENT_ID", ""),
		MQTTUsername:       getenvDefault("MQTT_USERNAME", ""),
		MQTTPassword:       getenvDefault("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:    getenvDefault("MQTT_TOPIC_PREFIX", "energy-gauge"),
		MQTTQoS:            getenvIntDefault("MQTT_QOS", 1),
		KafkaBrokers:       getenvList("KAFKA_BROKERS"),
		KafkaTopic:         getenvDefault("KAFKA_TOPIC", "energy-gauge.readings"),
		KafkaAcks:          getenvIntDefault("KAFKA_ACKS", 1),
		AlertWebhookURL:    getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertTemplate:      getenvDefault("ALERT_TEMPLATE", ""),
		AlertCooldown:      getenvDuration("ALERT_COOLDOWN", 0),
		AlertDedupeWindow:  getenvDuration("ALERT_DEDUP_WINDOW", 0),
	}
	if cfg.HassURL == "" {
		log.Fatal("HASS_URL is required")
	}
	if cfg.HassToken == "" {
		log.Fatal("HASS_TOKEN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	loc, err := time.LoadLocation(getenvDefault("TZ", "Local"))
	if err != nil {
		log.Fatalf("TZ: %v", err)
	}
	cfg.Location = loc
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
