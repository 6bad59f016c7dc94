package event

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"social-realtime/config"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/zishang520/engine.io/v2/log"
)

var busLog = log.NewLog("realtime:event")

type EventChannelData struct {
	Action string
	Data   []byte
	Out    EventChannelOutData
}

// EventChannelOutData tells a listener whether it may produce outgoing
// effects for the event. Replayed events may run with both off.
type EventChannelOutData struct {
	Send bool
	Log  bool
}

type RabbitMQSubscribeListener struct {
	Queue   string
	Channel chan EventChannelData
}

type EventLogData struct {
	Time    int64  `json:"time"`
	Service string `json:"service"`
	Action  string `json:"action"`
	Data    string `json:"data"`
}

const (
	RabbitMQActionHeader = "x-action"
	RabbitMQInLogFile    = "in.log"
	RabbitMQOutLogFile   = "out.log"
)

// Event modes
const (
	ModeInSendLog = "IN_SEND_LOG"
	ModeInSend    = "IN_SEND"
	ModeIn        = "IN"
	ModeOut       = "OUT"
	ModeDisable   = "DISABLE"
)

// Channel is the part of *amqp.Channel the bus uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes and consumes service events and keeps the JSON line
// event logs used for replay.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel Channel
	mode    string
	logDir  string

	mu        sync.Mutex
	queues    map[string]amqp.Queue
	listeners map[string]chan EventChannelData
	inLog     *os.File
	outLog    *os.File
}

// RabbitMQConnect dials the broker from config and declares queues.
func RabbitMQConnect(queues []string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		config.Config("RABBITMQ_USER"),
		config.Config("RABBITMQ_PASSWORD"),
		config.Config("RABBITMQ_HOST"),
		config.Config("RABBITMQ_PORT"),
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}
	busLog.Info("connection opened to RabbitMQ server")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open a RabbitMQ channel")
	}

	bus, err := New(channel, config.Config("EVENT_MODE"), "log")
	if err != nil {
		conn.Close()
		return nil, err
	}
	bus.conn = conn

	if err := bus.Declare(queues); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

// New wraps an open channel. Event logs live in logDir.
func New(channel Channel, mode, logDir string) (*RabbitMQ, error) {
	bus := &RabbitMQ{
		channel:   channel,
		mode:      mode,
		logDir:    logDir,
		queues:    make(map[string]amqp.Queue),
		listeners: make(map[string]chan EventChannelData),
	}
	if mode == ModeDisable {
		return bus, nil
	}

	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create event log dir")
	}
	var err error
	if bus.inLog, err = os.OpenFile(filepath.Join(logDir, RabbitMQInLogFile), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600); err != nil {
		return nil, errors.Wrap(err, "failed to open in log")
	}
	if bus.outLog, err = os.OpenFile(filepath.Join(logDir, RabbitMQOutLogFile), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600); err != nil {
		bus.inLog.Close()
		return nil, errors.Wrap(err, "failed to open out log")
	}
	return bus, nil
}

func (r *RabbitMQ) Declare(queues []string) error {
	for _, name := range queues {
		queue, err := r.channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return errors.Wrapf(err, "failed to declare RabbitMQ queue %s", name)
		}

		r.mu.Lock()
		r.queues[name] = queue
		r.mu.Unlock()
		busLog.Info("declared RabbitMQ queue: %s", name)
	}
	return nil
}

// Subscribe forwards every delivery of each queue to its listener channel.
// Deliveries without an action header are dropped.
func (r *RabbitMQ) Subscribe(listeners []RabbitMQSubscribeListener) error {
	for _, listener := range listeners {
		r.mu.Lock()
		r.listeners[listener.Queue] = listener.Channel
		r.mu.Unlock()

		msgs, err := r.channel.Consume(
			listener.Queue, // queue
			"",             // consumer
			false,          // auto-ack
			false,          // exclusive
			false,          // no-local
			false,          // no-wait
			nil,            // args
		)
		if err != nil {
			return errors.Wrapf(err, "failed to consume RabbitMQ queue %s", listener.Queue)
		}
		busLog.Info("subscribed to RabbitMQ [%s] queue", listener.Queue)

		go r.consume(listener, msgs)
	}
	return nil
}

func (r *RabbitMQ) consume(listener RabbitMQSubscribeListener, msgs <-chan amqp.Delivery) {
	for msg := range msgs {
		action, ok := msg.Headers[RabbitMQActionHeader].(string)
		if !ok || action == "" {
			busLog.Warning("dropping [%s] message %s without action", listener.Queue, msg.MessageId)
			msg.Nack(false, false)
			continue
		}

		r.writeLog(r.inLog, EventLogData{
			Time:    time.Now().UnixMicro(),
			Service: listener.Queue,
			Action:  action,
			Data:    string(msg.Body),
		})
		msg.Ack(false)

		listener.Channel <- EventChannelData{
			Action: action,
			Data:   msg.Body,
			Out:    EventChannelOutData{Send: true, Log: true},
		}
	}
	busLog.Info("RabbitMQ [%s] consumer stopped", listener.Queue)
}

// Emit publishes data as JSON to the service queue with the action header.
func (r *RabbitMQ) Emit(ctx context.Context, service, action string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s event", action)
	}
	return r.publish(ctx, service, action, body, true)
}

func (r *RabbitMQ) publish(ctx context.Context, service, action string, body []byte, logged bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		"",      // exchange
		service, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				RabbitMQActionHeader: action,
			},
			Body: body,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "failed to publish %s to %s", action, service)
	}

	if logged {
		r.writeLog(r.outLog, EventLogData{
			Time:    time.Now().UnixMicro(),
			Service: service,
			Action:  action,
			Data:    string(body),
		})
	}
	return nil
}

func (r *RabbitMQ) writeLog(file *os.File, data EventLogData) {
	if file == nil {
		return
	}
	line, _ := json.Marshal(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := file.Write(append(line, '\n')); err != nil {
		busLog.Error("failed to write event log %s: %v", file.Name(), err)
	}
}

// Replay feeds the event logs back according to the event mode: IN modes
// push the in log into the subscribed listeners, OUT republishes the out log.
func (r *RabbitMQ) Replay(ctx context.Context) error {
	switch r.mode {
	case ModeInSendLog:
		return r.replayIn(EventChannelOutData{Send: true, Log: true})
	case ModeInSend:
		return r.replayIn(EventChannelOutData{Send: true, Log: false})
	case ModeIn:
		return r.replayIn(EventChannelOutData{Send: false, Log: false})
	case ModeOut:
		return r.replayOut(ctx)
	}
	return nil
}

func (r *RabbitMQ) replayIn(out EventChannelOutData) error {
	return r.scan(RabbitMQInLogFile, func(data EventLogData) error {
		r.mu.Lock()
		listener, ok := r.listeners[data.Service]
		r.mu.Unlock()
		if !ok {
			busLog.Warning("no listener for replayed [%s] %s", data.Service, data.Action)
			return nil
		}
		listener <- EventChannelData{Action: data.Action, Data: []byte(data.Data), Out: out}
		return nil
	})
}

func (r *RabbitMQ) replayOut(ctx context.Context) error {
	return r.scan(RabbitMQOutLogFile, func(data EventLogData) error {
		return r.publish(ctx, data.Service, data.Action, []byte(data.Data), false)
	})
}

func (r *RabbitMQ) scan(name string, fn func(EventLogData) error) error {
	file, err := os.Open(filepath.Join(r.logDir, name))
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", name)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	replayed := 0
	for scanner.Scan() {
		data := EventLogData{}
		if err := json.Unmarshal(scanner.Bytes(), &data); err != nil {
			busLog.Warning("skipping malformed %s line: %v", name, err)
			continue
		}
		if err := fn(data); err != nil {
			return err
		}
		replayed++
	}
	busLog.Info("replayed %d events from %s", replayed, name)
	return errors.Wrapf(scanner.Err(), "failed to read %s", name)
}

func (r *RabbitMQ) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(r.channel.Close())
	if r.conn != nil {
		keep(r.conn.Close())
	}
	if r.inLog != nil {
		keep(r.inLog.Close())
	}
	if r.outLog != nil {
		keep(r.outLog.Close())
	}
	return firstErr
}
