// Package mqttingest принимает пакеты акселерометра из MQTT и публикует вердикты
package mqttingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/metrics"
	"vibration-monitor/internal/models"
)

// Submitter прогоняет пакет через конвейер
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (*models.Verdict, error)
}

// Config параметры подключения
type Config struct {
	Broker        string
	ClientID      string
	Topic         string
	VerdictTopic  string
	QoS           byte
	KeepAlive     time.Duration
	SubmitTimeout time.Duration
	// Buffer сколько сообщений ждут обработки; лишние отбрасываются
	Buffer int
}

// Message публикуется в VerdictTopic на каждый принятый пакет
type Message struct {
	Topic   string                `json:"topic"`
	Verdict *models.Verdict       `json:"verdict,omitempty"`
	Error   *models.ErrorResponse `json:"error,omitempty"`
}

// Subscriber подписчик на топик пакетов
type Subscriber struct {
	cfg        Config
	submitter  Submitter
	log        zerolog.Logger
	subscribed chan struct{}
}

// NewSubscriber создает подписчика
func NewSubscriber(cfg Config, submitter Submitter, log zerolog.Logger) *Subscriber {
	if cfg.ClientID == "" {
		cfg.ClientID = "vibration-monitor"
	}
	if cfg.Topic == "" {
		cfg.Topic = "sensors/+/burst"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	return &Subscriber{
		cfg:        cfg,
		submitter:  submitter,
		log:        log.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger(),
		subscribed: make(chan struct{}),
	}
}

// Subscribed закрывается после успешной подписки
func (s *Subscriber) Subscribed() <-chan struct{} {
	return s.subscribed
}

// Run подключается к брокеру и обрабатывает пакеты по одному до отмены ctx.
// Возвращает nil при отмене и ошибку при потере соединения.
func (s *Subscriber) Run(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("failed to dial MQTT broker %s: %w", s.cfg.Broker, err)
	}

	incoming := make(chan *paho.Publish, s.cfg.Buffer)
	clientErr := make(chan error, 1)
	reportErr := func(err error) {
		select {
		case clientErr <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				select {
				case incoming <- pr.Packet:
				default:
					metrics.MQTTMessages.WithLabelValues("in", "dropped").Inc()
					s.log.Warn().Str("topic", pr.Packet.Topic).Msg("ingest buffer full, burst dropped")
				}
				return true, nil
			},
		},
		OnClientError: reportErr,
		OnServerDisconnect: func(d *paho.Disconnect) {
			reportErr(fmt.Errorf("server disconnected, reason code %d", d.ReasonCode))
		},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  uint16(s.cfg.KeepAlive.Seconds()),
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.cfg.Broker, err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.cfg.Topic, QoS: s.cfg.QoS}},
	}); err != nil {
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Topic, err)
	}
	close(s.subscribed)
	s.log.Info().Str("topic", s.cfg.Topic).Str("verdict_topic", s.cfg.VerdictTopic).Msg("subscribed")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("disconnecting")
			client.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return nil
		case err := <-clientErr:
			conn.Close()
			return fmt.Errorf("MQTT connection lost: %w", err)
		case pub := <-incoming:
			s.handle(ctx, client, pub)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, client *paho.Client, pub *paho.Publish) {
	metrics.MQTTMessages.WithLabelValues("in", "received").Inc()

	msg := s.process(ctx, pub)
	if s.cfg.VerdictTopic == "" {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode verdict")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Publish(pubCtx, &paho.Publish{
		Topic:   s.cfg.VerdictTopic,
		QoS:     s.cfg.QoS,
		Payload: data,
	}); err != nil {
		metrics.MQTTMessages.WithLabelValues("out", "error").Inc()
		s.log.Error().Err(err).Str("topic", s.cfg.VerdictTopic).Msg("failed to publish verdict")
		return
	}
	metrics.MQTTMessages.WithLabelValues("out", "success").Inc()
}

// process прогоняет пакет и собирает ответное сообщение
func (s *Subscriber) process(ctx context.Context, pub *paho.Publish) Message {
	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}

	msg := Message{Topic: pub.Topic}
	verdict, err := s.submitter.Submit(ctx, pub.Payload)
	if err != nil {
		resp := errorResponse(err)
		msg.Error = &resp
		s.log.Debug().Err(err).Str("topic", pub.Topic).Msg("burst rejected")
		return msg
	}
	msg.Verdict = verdict
	return msg
}

func errorResponse(err error) models.ErrorResponse {
	code, ok := errors.CodeOf(err)
	if !ok {
		return models.ErrorResponse{Error: "internal error", Code: "internal", Message: err.Error()}
	}
	return models.ErrorResponse{
		Error:   errors.MessageOf(code),
		Code:    string(code),
		Message: err.Error(),
	}
}
