package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knowledgebase/netgraph/internal/db"
	"github.com/knowledgebase/netgraph/internal/queue"
	"github.com/knowledgebase/netgraph/internal/storage"
	"github.com/knowledgebase/netgraph/internal/util"
	"github.com/knowledgebase/netgraph/pkg/leaselock"
	s3loader "github.com/knowledgebase/netgraph/pkg/loader/s3"
	"github.com/knowledgebase/netgraph/pkg/logger"
	"github.com/knowledgebase/netgraph/pkg/logger/console"
	"github.com/knowledgebase/netgraph/pkg/store"
	pgxstore "github.com/knowledgebase/netgraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		JSON:   util.GetEnvString("LOG_FORMAT", "text") == "json",
		Prefix: "netgraph-worker",
	})
	logger.Init(consoleLogger)

	// Init s3 client
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}
	files := s3loader.NewS3FileLoaderWithClient(storage.Bucket(), client)

	// Init pgx client
	dbURL := util.GetEnv("DATABASE_URL")
	if err := db.Migrate(util.GetEnvString("MIGRATIONS_PATH", "./migrations"), dbURL); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}
	pgConn, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	importer := &queue.Importer{
		Files: files,
		Writer: func(dataset string) store.Writer {
			return pgxstore.New(pgConn, dataset)
		},
		Locks: leaselock.New(pgConn),
		Publish: func(topic string, data []byte) error {
			return queue.PublishTopic(ch, topic, data)
		},
	}

	// prefetch=1 keeps imports strictly one at a time per worker
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.ImportQueue,
		fmt.Sprintf("%s_consumer", queue.ImportQueue),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.ImportQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.ImportQueue)
	go consume(ctx, msgs, consumerCh, importer)

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, ch *amqp.Channel, importer *queue.Importer) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping message processor")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.ImportQueue)
				return
			}
			startTime := time.Now()
			logger.Info("Received message", "queue", queue.ImportQueue)

			if err := importer.ProcessImport(ctx, msg.Body); err != nil {
				logger.Error("Error processing message", "queue", queue.ImportQueue, "err", err)
				queue.HandleProcessingError(ch, msg, queue.ImportQueue)
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("Failed to ack message", "err", err)
			}

			d := time.Since(startTime)
			logger.Info(
				"Message processed successfully",
				"queue", queue.ImportQueue,
				"duration", fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60),
			)
		}
	}
}
