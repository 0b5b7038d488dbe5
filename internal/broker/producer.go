package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

// KafkaProducerClient publishes finished scans. It drains resultChan until the channel is closed.
type KafkaProducerClient struct {
	resultChan <-chan *model.ScanResult
	cfg        *config.ProducerConfig
	log        *slog.Logger
	wg         *sync.WaitGroup
}

func NewKafkaProducer(resultChan <-chan *model.ScanResult, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	return &KafkaProducerClient{
		resultChan: resultChan,
		cfg:        cfg,
		log:        log,
		wg:         wg,
	}
}

func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))

	w := kafka.Writer{
		Addr:         kafka.TCP(strings.Split(p.cfg.Addr, ",")...),
		Topic:        p.cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  p.cfg.MaxAttempts,
		BatchSize:    1,                // batching is done below
		BatchTimeout: time.Millisecond, // batching is done below
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAsks),
		Async:        p.cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	defer func() {
		if err := w.Close(); err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		if err := w.WriteMessages(ctx, batch...); err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
		} else {
			p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
		}
		batch = batch[:0]
	}

	for res := range p.resultChan {
		msg, err := encodeResult(res)
		if err != nil {
			p.log.Error("marshaling error.", slog.String("err", err.Error()), slog.String("url", res.URL))
			continue
		}
		batch = append(batch, msg)
		select {
		case <-batchTicker.C:
			flush()
		default:
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		}
	}
	flush()
	p.log.Info("stopping kafka writer.")
}

func encodeResult(res *model.ScanResult) (kafka.Message, error) {
	body, err := jsoniter.Marshal(res)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(res.URL), Value: body}, nil
}
