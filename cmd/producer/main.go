package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sanspareilsmyn/elapsedtime/internal/message"
)

var (
	broker   = flag.String("broker", "localhost:9092", "Kafka broker address")
	topic    = flag.String("topic", "logs", "Topic to publish envelopes to")
	interval = flag.Duration("interval", 200*time.Millisecond, "Delay between messages")
)

var (
	hosts   = []string{"host1", "host2", "host3"}
	sources = []string{"syslog", "nginx"}
	lines   = []string{
		"INFO GET /ping",
		"WARN POST /auth",
		"WARN GET /favicon.ico",
		"WARN POST /login",
	}
)

func main() {
	flag.Parse()

	writer := &kafka.Writer{
		Addr:     kafka.TCP(*broker),
		Topic:    *topic,
		Balancer: &kafka.Hash{},
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Fatalf("Error closing kafka writer: %v", err)
		}
	}()
	log.Printf("Starting sample producer for topic: %s on broker: %s", *topic, *broker)

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		log.Println("Shutdown signal received, stopping producer...")
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ticker.C:
			env := sampleEnvelope(rng)
			value, err := message.EncodeEnvelope(env)
			if err != nil {
				log.Printf("Error encoding envelope: %v", err)
				continue
			}

			err = writer.WriteMessages(ctx, kafka.Message{Key: []byte(env.Tag), Value: value})
			if err != nil {
				if ctx.Err() != nil {
					log.Println("Context cancelled, exiting message loop.")
					return
				}
				log.Printf("Error writing message: %v", err)
			}

		case <-ctx.Done():
			log.Println("Producer loop stopped.")
			return
		}
	}
}

// sampleEnvelope builds a "<source>.<host>" tagged log line.
func sampleEnvelope(rng *rand.Rand) message.Envelope {
	tag := sources[rng.Intn(len(sources))] + "." + hosts[rng.Intn(len(hosts))]
	return message.Envelope{
		Tag:  tag,
		Time: time.Now(),
		Record: message.Record{
			"message": lines[rng.Intn(len(lines))],
		},
	}
}
