package broker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
)

var errEmptyTask = errors.New("scan task has no url")

// KafkaConsumerClient reads scan tasks and feeds taskChan. It closes taskChan when ctx is cancelled.
type KafkaConsumerClient struct {
	taskChan chan<- *model.ScanRequest
	cfg      *config.ConsumerConfig
	log      *slog.Logger
	wg       *sync.WaitGroup
}

func NewKafkaConsumer(taskChan chan<- *model.ScanRequest, cfg *config.ConsumerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaConsumerClient {
	return &KafkaConsumerClient{
		taskChan: taskChan,
		cfg:      cfg,
		log:      log,
		wg:       wg,
	}
}

func (c *KafkaConsumerClient) Run(ctx context.Context) {
	c.log.Info("starting kafka consumer.", slog.String("topic", c.cfg.ReadTopicName))
	defer c.wg.Done()
	defer func() {
		close(c.taskChan)
		c.log.Info("close taskChan.")
	}()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          strings.Split(c.cfg.Brokers, ","),
		Topic:            c.cfg.ReadTopicName,
		GroupID:          c.cfg.GroupID,
		MaxWait:          c.cfg.MaxWait,
		ReadBatchTimeout: c.cfg.ReadBatchTimeout,
	})
	defer func() {
		c.log.Info("stopping kafka reader.")
		if err := r.Close(); err != nil {
			c.log.Error("failed to close kafka reader.", slog.String("err", err.Error()))
		}
	}()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("failed to read message from kafka.", slog.String("err", err.Error()))
			continue
		}
		task, err := decodeTask(m.Value)
		if err != nil {
			c.log.Error("failed to unmarshal message.", slog.String("err", err.Error()))
			continue
		}
		select {
		case c.taskChan <- task:
		case <-ctx.Done():
			return
		}
	}
}

func decodeTask(value []byte) (*model.ScanRequest, error) {
	var task model.ScanRequest
	if err := jsoniter.Unmarshal(value, &task); err != nil {
		return nil, err
	}
	task.URL = strings.TrimSpace(task.URL)
	if task.URL == "" {
		return nil, errEmptyTask
	}
	return &task, nil
}
